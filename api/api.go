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

package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/ledgersnap/ledgersnap"
	"github.com/ledgersnap/ledgersnap/api/middleware"
	"github.com/ledgersnap/ledgersnap/config"
	"github.com/ledgersnap/ledgersnap/model"
)

type Api struct {
	ledgersnap *ledgersnap.LedgerSnap
	router     *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router

	authorized := router.Group("/", middleware.BearerAuthMiddleware(func(c *gin.Context, token string) (*model.User, error) {
		return a.ledgersnap.AuthenticateToken(c.Request.Context(), token)
	}))
	authorized.POST("/submissions", a.CreateSubmission)
	authorized.GET("/submissions", a.ListSubmissions)
	authorized.GET("/submissions/:id", a.GetSubmission)

	admin := router.Group("/", middleware.SecretKeyAuthMiddleware())
	admin.POST("/tenants", a.CreateTenant)
	admin.GET("/tenants", a.GetAllTenants)
	admin.GET("/tenants/:id", a.GetTenant)
	admin.POST("/tenants/:id/users", a.InviteUser)
	admin.GET("/tenants/:id/users", a.ListUsers)
	admin.PUT("/users/:id/status", a.UpdateUserStatus)

	return a.router
}

func NewAPI(l *ledgersnap.LedgerSnap) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	r.Use(otelgin.Middleware("LEDGERSNAP"))
	r.Use(middleware.RateLimitMiddleware(conf))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})

	return &Api{ledgersnap: l, router: r}
}
