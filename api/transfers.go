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

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	model2 "github.com/bravemoney/bravemoney/api/model"
)

// CreateTransfer moves funds from the caller's ledger to another account.
func (a Api) CreateTransfer(c *gin.Context) {
	var body model2.CreateTransfer
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := body.ValidateCreateTransfer(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := a.engine.Transfer(c.Request.Context(), body.ToAccount, body.Amount, body.Note)
	if err != nil {
		renderError(c, err)
		return
	}
	renderResult(c, result, http.StatusCreated)
}

// RecoverTransfers sweeps pending transfer intents and applies any credit
// legs a crashed transfer left behind.
func (a Api) RecoverTransfers(c *gin.Context) {
	recovered, err := a.engine.RecoverPendingTransfers(c.Request.Context())
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recovered": recovered})
}
