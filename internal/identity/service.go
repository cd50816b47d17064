// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/taibuivan/votegate/internal/platform/apperr"
	"github.com/taibuivan/votegate/internal/platform/constants"
	"github.com/taibuivan/votegate/internal/platform/validate"
	"github.com/taibuivan/votegate/pkg/uuid"
)

// Role grant sources recorded on user_roles.
const (
	RoleSourceEnrollment = "enrollment"
	RoleSourceSSO        = "sso"
)

// Service implements identity resolution and profile management.
type Service struct {
	repository Repository
	logger     *slog.Logger
	now        func() time.Time
}

// NewService constructs a new identity [Service].
func NewService(repository Repository, logger *slog.Logger) *Service {
	return &Service{
		repository: repository,
		logger:     logger,
		now:        time.Now,
	}
}

// # Resolution

/*
ResolveByContact finds the user matching the email or the phone number.

Returns:
  - *User: The matched user
  - error: ValidationError when both are empty, NotFound (USER_NOT_FOUND)
*/
func (service *Service) ResolveByContact(context context.Context, email, phone string) (*User, error) {
	email = normalizeEmail(email)
	phone = validate.StripPhone(phone)

	if email == "" && phone == "" {
		return nil, apperr.ValidationError("Email or phone is required",
			apperr.FieldError{Field: "email", Message: "Provide an email or a phone number"},
		)
	}

	user, err := service.repository.FindByContact(context, email, phone)
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil, apperr.NotFound("User").WithCode("USER_NOT_FOUND")
		}
		return nil, fmt.Errorf("identity_service_resolve_failed: %w", err)
	}

	return user, nil
}

// EnsureNotBanned returns Forbidden (USER_BANNED) for banned users.
func EnsureNotBanned(user *User) error {
	if user.IsBanned {
		return apperr.Forbidden("This account has been suspended").WithCode("USER_BANNED")
	}
	return nil
}

// IsFirstTime reports whether the user has never completed profile capture.
func (service *Service) IsFirstTime(context context.Context, userID string) (bool, error) {
	exists, err := service.repository.HasDetails(context, userID)
	if err != nil {
		return false, fmt.Errorf("identity_service_first_time_failed: %w", err)
	}
	return !exists, nil
}

/*
Reconcile maps an external identity onto a local user, provisioning one if needed.

Lookup order is email, then external subject. A user matched by email gets the
subject linked. New users are created activated and approved.

Returns:
  - *User: The local user
  - bool: true when the user was created by this call
*/
func (service *Service) Reconcile(context context.Context, external ExternalIdentity) (*User, bool, error) {
	email := normalizeEmail(external.Email)
	subject := strings.TrimSpace(external.Subject)

	if email == "" && subject == "" {
		return nil, false, apperr.ValidationError("Assertion carries no usable identity")
	}

	if email != "" {
		user, err := service.repository.FindByContact(context, email, "")
		switch {
		case err == nil:
			if subject != "" && user.ExternalSubject == "" {
				if err := service.repository.LinkExternalSubject(context, user.ID, subject); err != nil {
					return nil, false, fmt.Errorf("identity_service_link_failed: %w", err)
				}
				user.ExternalSubject = subject
			}
			return user, false, nil
		case !apperr.IsNotFound(err):
			return nil, false, fmt.Errorf("identity_service_reconcile_failed: %w", err)
		}
	}

	if subject != "" {
		user, err := service.repository.FindByExternalSubject(context, subject)
		switch {
		case err == nil:
			return user, false, nil
		case !apperr.IsNotFound(err):
			return nil, false, fmt.Errorf("identity_service_reconcile_failed: %w", err)
		}
	}

	user := &User{
		ID:              uuid.New(),
		Email:           email,
		Username:        provisionedUsername(external.Username, email, subject),
		FirstName:       normalizeText(external.FirstName),
		LastName:        normalizeText(external.LastName),
		Country:         normalizeText(external.Country),
		Gender:          strings.ToLower(normalizeText(external.Gender)),
		ExternalSubject: subject,
		IsActivated:     true,
		IsApproved:      true,
		CreatedAt:       service.now(),
	}

	if err := service.repository.Create(context, user); err != nil {
		return nil, false, fmt.Errorf("identity_service_provision_failed: %w", err)
	}

	service.logger.InfoContext(context, "user_auto_provisioned",
		slog.String("user_id", user.ID),
		slog.String("source", RoleSourceSSO),
	)

	return user, true, nil
}

// provisionedUsername prefers the asserted username, then the email local part.
func provisionedUsername(asserted, email, subject string) string {
	if username := normalizeText(asserted); username != "" {
		return username
	}
	if local, _, found := strings.Cut(email, "@"); found && local != "" {
		return local
	}
	return "sso_" + subject
}

// # Profile

// FillProfile writes only the profile fields that are still empty.
func (service *Service) FillProfile(context context.Context, userID, sessionID string, fields ProfileFields, ip string) error {
	return service.upsertProfile(context, userID, sessionID, fields, ip, false)
}

// SaveProfile overwrites profile fields with every provided value.
func (service *Service) SaveProfile(context context.Context, userID, sessionID string, fields ProfileFields, ip string) error {
	return service.upsertProfile(context, userID, sessionID, fields, ip, true)
}

func (service *Service) upsertProfile(context context.Context, userID, sessionID string, fields ProfileFields, ip string, overwrite bool) error {
	fields = fields.normalize()

	details := &Details{
		UserID:         userID,
		SessionID:      sessionID,
		FirstName:      fields.FirstName,
		LastName:       fields.LastName,
		Age:            fields.Age,
		Gender:         fields.Gender,
		Country:        fields.Country,
		City:           fields.City,
		Timezone:       fields.Timezone,
		Language:       fields.Language,
		RegistrationIP: ip,
	}

	if err := service.repository.UpsertDetails(context, details, overwrite); err != nil {
		return fmt.Errorf("identity_service_profile_failed: %w", err)
	}
	return nil
}

// AssignDefaultRole grants the default voter role; repeated grants are no-ops.
func (service *Service) AssignDefaultRole(context context.Context, userID, source string) error {
	if err := service.repository.AssignRole(context, userID, constants.DefaultRole, source); err != nil {
		return fmt.Errorf("identity_service_assign_role_failed: %w", err)
	}
	return nil
}

// MarkActivated flags the user as activated.
func (service *Service) MarkActivated(context context.Context, userID string) error {
	if err := service.repository.MarkActivated(context, userID); err != nil {
		return fmt.Errorf("identity_service_activate_failed: %w", err)
	}
	return nil
}

// Details returns the profile-details row of a user.
func (service *Service) Details(context context.Context, userID string) (*Details, error) {
	return service.repository.FindDetails(context, userID)
}

/*
Profile aggregates the user, the profile details (when present) and the roles.
*/
func (service *Service) Profile(context context.Context, userID string) (*Profile, error) {
	user, err := service.repository.FindByID(context, userID)
	if err != nil {
		return nil, err
	}

	details, err := service.repository.FindDetails(context, userID)
	if err != nil && !apperr.IsNotFound(err) {
		return nil, fmt.Errorf("identity_service_profile_details_failed: %w", err)
	}

	roles, err := service.repository.Roles(context, userID)
	if err != nil {
		return nil, fmt.Errorf("identity_service_profile_roles_failed: %w", err)
	}
	if roles == nil {
		roles = []string{}
	}

	return &Profile{User: user, Details: details, Roles: roles}, nil
}
