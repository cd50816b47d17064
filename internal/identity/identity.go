// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package identity resolves who is authenticating.

It maps a contact claim (email/phone) or an external SSO identity onto a
local user record, auto-provisioning accounts for SSO users seen for the
first time, and owns the profile-details row whose absence marks a user as
first-time.

# Architecture

  - Entities: User, Details, Profile.
  - Repository: Interface-based storage contract (store.go).
  - Service: Resolution, reconciliation and profile upserts.
*/
package identity

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// # Domain Entities

// User is a person known to the platform.
type User struct {
	ID              string    `json:"id"`
	Email           string    `json:"email,omitempty"`
	Phone           string    `json:"phone,omitempty"`
	Username        string    `json:"username,omitempty"`
	FirstName       string    `json:"firstName,omitempty"`
	LastName        string    `json:"lastName,omitempty"`
	Country         string    `json:"country,omitempty"`
	Gender          string    `json:"gender,omitempty"`
	ExternalSubject string    `json:"-"`
	IsBanned        bool      `json:"-"`
	IsActivated     bool      `json:"isActivated"`
	IsApproved      bool      `json:"isApproved"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Details is the per-user profile captured during enrollment or SSO pre-fill.
type Details struct {
	UserID         string    `json:"userId"`
	SessionID      string    `json:"-"`
	FirstName      string    `json:"firstName,omitempty"`
	LastName       string    `json:"lastName,omitempty"`
	Age            *int      `json:"age,omitempty"`
	Gender         string    `json:"gender,omitempty"`
	Country        string    `json:"country,omitempty"`
	City           string    `json:"city,omitempty"`
	Timezone       string    `json:"timezone"`
	Language       string    `json:"language"`
	RegistrationIP string    `json:"-"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// ProfileFields are the mutable profile attributes. Empty strings and a nil
// Age mean "not provided".
type ProfileFields struct {
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Age       *int   `json:"age,omitempty"`
	Gender    string `json:"gender,omitempty"`
	Country   string `json:"country,omitempty"`
	City      string `json:"city,omitempty"`
	Timezone  string `json:"timezone,omitempty"`
	Language  string `json:"language,omitempty"`
}

// IsEmpty reports whether no attribute was provided.
func (fields ProfileFields) IsEmpty() bool {
	return fields == ProfileFields{}
}

// ExternalIdentity is what an external identity provider asserts about a user.
type ExternalIdentity struct {
	Subject   string
	Email     string
	Username  string
	FirstName string
	LastName  string
	Country   string
	Gender    string
	Age       *int
}

// Profile aggregates everything returned to a client after completion.
type Profile struct {
	User    *User    `json:"user"`
	Details *Details `json:"details,omitempty"`
	Roles   []string `json:"roles"`
}

// Profile defaults applied when a details row is first created.
const (
	DefaultTimezone = "UTC"
	DefaultLanguage = "en_us"
)

// normalizeText composes Unicode text into NFC and trims surrounding space so
// visually identical names compare and store identically.
func normalizeText(value string) string {
	return strings.TrimSpace(norm.NFC.String(value))
}

// normalizeEmail lower-cases and trims an email address.
func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// normalize returns a copy of fields with every text attribute normalized.
func (fields ProfileFields) normalize() ProfileFields {
	return ProfileFields{
		FirstName: normalizeText(fields.FirstName),
		LastName:  normalizeText(fields.LastName),
		Age:       fields.Age,
		Gender:    strings.ToLower(normalizeText(fields.Gender)),
		Country:   normalizeText(fields.Country),
		City:      normalizeText(fields.City),
		Timezone:  strings.TrimSpace(fields.Timezone),
		Language:  strings.TrimSpace(fields.Language),
	}
}
