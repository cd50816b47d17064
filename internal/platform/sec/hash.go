// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// # Slow Hashes (low-entropy secrets)

// HashSecret hashes a low-entropy secret (e.g. a security answer) using bcrypt.
func HashSecret(plainText string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(plainText), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("sec: failed to hash secret: %w", err)
	}
	return string(hashedBytes), nil
}

// CheckSecretHash compares a plain-text secret with its bcrypt hash.
func CheckSecretHash(plainText, existingHash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(existingHash), []byte(plainText))
	return err == nil
}

// # Salted Template Hashes

// Argon2idParams tunes [DeriveTemplateHash]. Values are persisted next to the hash
// so they can change without invalidating older enrollments.
type Argon2idParams struct {
	Time        uint32
	MemoryKiB   uint32
	Parallelism uint8
	KeyLen      uint32
}

// DefaultArgon2idParams returns the parameters used for new enrollments.
func DefaultArgon2idParams() Argon2idParams {
	return Argon2idParams{
		Time:        1,
		MemoryKiB:   64 * 1024,
		Parallelism: 4,
		KeyLen:      32,
	}
}

// DeriveTemplateHash derives a one-way salted hash of an arbitrary-length template.
// bcrypt truncates at 72 bytes, so biometric templates go through argon2id instead.
func DeriveTemplateHash(template string, salt []byte, params Argon2idParams) []byte {
	return argon2.IDKey([]byte(template), salt, params.Time, params.MemoryKiB, params.Parallelism, params.KeyLen)
}

// CompareTemplateHash reports whether template derives to expected under salt.
func CompareTemplateHash(template string, salt []byte, params Argon2idParams, expected []byte) bool {
	derived := DeriveTemplateHash(template, salt, params)
	return subtle.ConstantTimeCompare(derived, expected) == 1
}

// # Fast Hashes (high-entropy values)

// HashToken returns the hex SHA-256 digest of a high-entropy value such as a
// signed token, an OTP or a backup code. Only the digest is ever persisted.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// EqualHash compares two hex digests in constant time.
func EqualHash(left, right string) bool {
	return subtle.ConstantTimeCompare([]byte(left), []byte(right)) == 1
}
