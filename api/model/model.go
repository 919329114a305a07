/*
Copyright 2024 LedgerSnap Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package model

import (
	"encoding/json"
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/ledgersnap/ledgersnap/model"
)

// CreateSubmission is the wire request for POST /submissions. Payload is a
// tagged union discriminated by Type; its shape is validated here so a
// malformed submission is rejected before it ever touches the idempotency
// ledger.
type CreateSubmission struct {
	Type           string          `json:"type"`
	IdempotencyKey string          `json:"idempotencyKey"`
	Payload        json.RawMessage `json:"payload"`
}

func (s *CreateSubmission) ValidateCreateSubmission() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.Type, validation.Required, validation.In(string(model.TypeReceipt), string(model.TypeStatement))),
		validation.Field(&s.IdempotencyKey, validation.Required, validation.Length(1, 255)),
		validation.Field(&s.Payload, validation.Required, validation.By(payloadShapeValidation(s))),
	)
}

func payloadShapeValidation(s *CreateSubmission) validation.RuleFunc {
	return func(value interface{}) error {
		switch s.Type {
		case string(model.TypeReceipt):
			var payload model.ReceiptPayload
			if err := json.Unmarshal(s.Payload, &payload); err != nil {
				return errors.New("payload is not a valid receipt")
			}
			if payload.ImageBase64 == "" {
				return errors.New("receipt payload requires imageBase64")
			}
		case string(model.TypeStatement):
			var payload model.StatementPayload
			if err := json.Unmarshal(s.Payload, &payload); err != nil {
				return errors.New("payload is not a valid statement")
			}
			if len(payload.Transactions) == 0 {
				return errors.New("statement payload requires at least one transaction")
			}
		}
		return nil
	}
}

type CreateTenant struct {
	BusinessName string `json:"business_name"`
	BusinessCode string `json:"business_code"`
}

func (t *CreateTenant) ValidateCreateTenant() error {
	return validation.ValidateStruct(t,
		validation.Field(&t.BusinessName, validation.Required, validation.Length(2, 128)),
		validation.Field(&t.BusinessCode, validation.Length(0, 8)),
	)
}

type InviteUser struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

func (u *InviteUser) ValidateInviteUser() error {
	return validation.ValidateStruct(u,
		validation.Field(&u.Email, validation.Required, is.EmailFormat),
		validation.Field(&u.Name, validation.Length(0, 128)),
		validation.Field(&u.Role, validation.In(model.RoleStaff, model.RoleManager)),
	)
}

type UpdateUserStatus struct {
	Status string `json:"status"`
}

func (u *UpdateUserStatus) ValidateUpdateUserStatus() error {
	return validation.ValidateStruct(u,
		validation.Field(&u.Status, validation.Required, validation.In(model.UserActive, model.UserDisabled)),
	)
}
