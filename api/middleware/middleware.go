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

package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/bravemoney/bravemoney"
)

// IdentityHeader carries the caller identity for a single request. When set,
// it overrides the engine's configured identity for that request only.
const IdentityHeader = "X-Identity"

// IdentityMiddleware lifts the identity header into the request context so
// engine operations downstream run as that caller.
func IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if uid := c.GetHeader(IdentityHeader); uid != "" {
			c.Request = c.Request.WithContext(bravemoney.WithIdentity(c.Request.Context(), uid))
		}
		c.Next()
	}
}
