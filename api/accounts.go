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

// GetAccount returns the caller's account number, reserving one on first use.
func (a Api) GetAccount(c *gin.Context) {
	acct, err := a.engine.EnsureAccount(c.Request.Context())
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account_number": acct})
}

// CreateLink points the caller's operations at another account's ledger.
func (a Api) CreateLink(c *gin.Context) {
	var body model2.CreateLink
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := body.ValidateCreateLink(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := a.engine.Link(c.Request.Context(), body.AccountNumber)
	if err != nil {
		renderError(c, err)
		return
	}
	renderResult(c, result, http.StatusCreated)
}

// DeleteLink points the caller back at its own ledger.
func (a Api) DeleteLink(c *gin.Context) {
	result, err := a.engine.Unlink(c.Request.Context())
	if err != nil {
		renderError(c, err)
		return
	}
	renderResult(c, result, http.StatusOK)
}
