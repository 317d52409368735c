/*
Copyright 2025 Bravemoney Authors.

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
	"errors"
	"math"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/bravemoney/bravemoney/model"
)

// MoveMoney is the body for credits and debits.
type MoveMoney struct {
	Amount float64 `json:"amount"`
	Note   string  `json:"note"`
}

// CreateTransfer is the body for transfers between accounts.
type CreateTransfer struct {
	ToAccount string  `json:"to_account"`
	Amount    float64 `json:"amount"`
	Note      string  `json:"note"`
}

// CreateLink is the body for linking the caller to another account's ledger.
type CreateLink struct {
	AccountNumber string `json:"account_number"`
}

func finiteAmount(value interface{}) error {
	amount, ok := value.(float64)
	if !ok {
		return errors.New("amount must be a number")
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return errors.New("amount must be a finite number")
	}
	if amount <= 0 {
		return errors.New("amount must be greater than zero")
	}
	return nil
}

func accountFormat(value interface{}) error {
	acct, ok := value.(string)
	if !ok || !model.IsValidAccountNumber(model.CanonicalAccountNumber(acct)) {
		return errors.New("account number must look like BMXXXXXXXXXX")
	}
	return nil
}

func (m *MoveMoney) ValidateMoveMoney() error {
	return validation.ValidateStruct(m,
		validation.Field(&m.Amount, validation.Required.Error("amount is required"), validation.By(finiteAmount)),
	)
}

func (t *CreateTransfer) ValidateCreateTransfer() error {
	return validation.ValidateStruct(t,
		validation.Field(&t.ToAccount, validation.Required, validation.By(accountFormat)),
		validation.Field(&t.Amount, validation.Required.Error("amount is required"), validation.By(finiteAmount)),
	)
}

func (l *CreateLink) ValidateCreateLink() error {
	return validation.ValidateStruct(l,
		validation.Field(&l.AccountNumber, validation.Required, validation.By(accountFormat)),
	)
}
