package models

import (
	"testing"
	"time"
)

func TestCredentialValid(t *testing.T) {
	t.Parallel()

	issued := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	reg := &Registration{
		CountryCode:   "91",
		PhoneNumber:   "9876543210",
		Name:          "Alice",
		Credential:    "KQZM",
		CredentialExp: issued.Add(10 * time.Minute),
	}

	if !reg.CredentialValid(issued) {
		t.Error("credential should be valid at issue time")
	}
	if !reg.CredentialValid(issued.Add(10*time.Minute - time.Second)) {
		t.Error("credential should be valid just before expiry")
	}
	if reg.CredentialValid(issued.Add(10 * time.Minute)) {
		t.Error("credential must not be accepted at expiry")
	}
	if reg.CredentialValid(issued.Add(time.Hour)) {
		t.Error("credential must not be accepted after expiry")
	}

	blank := &Registration{CredentialExp: issued.Add(10 * time.Minute)}
	if blank.CredentialValid(issued) {
		t.Error("a registration without a credential has nothing to accept")
	}
}
