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

// GetBalance returns the caller's current ledger state.
func (a Api) GetBalance(c *gin.Context) {
	result, err := a.engine.GetBalance(c.Request.Context())
	if err != nil {
		renderError(c, err)
		return
	}
	renderResult(c, result, http.StatusOK)
}

// Credit adds funds to the caller's ledger.
func (a Api) Credit(c *gin.Context) {
	var body model2.MoveMoney
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := body.ValidateMoveMoney(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := a.engine.Credit(c.Request.Context(), body.Amount, body.Note)
	if err != nil {
		renderError(c, err)
		return
	}
	renderResult(c, result, http.StatusCreated)
}

// Debit removes funds from the caller's ledger.
func (a Api) Debit(c *gin.Context) {
	var body model2.MoveMoney
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := body.ValidateMoveMoney(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := a.engine.Debit(c.Request.Context(), body.Amount, body.Note)
	if err != nil {
		renderError(c, err)
		return
	}
	renderResult(c, result, http.StatusCreated)
}
