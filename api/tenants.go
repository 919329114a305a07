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
	"strconv"

	"github.com/gin-gonic/gin"

	model2 "github.com/ledgersnap/ledgersnap/api/model"
	"github.com/ledgersnap/ledgersnap/internal/apierror"
)

func (a Api) CreateTenant(c *gin.Context) {
	var req model2.CreateTenant
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	if err := req.ValidateCreateTenant(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tenant, err := a.ledgersnap.CreateTenant(c.Request.Context(), req.BusinessName, req.BusinessCode)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": friendlyError(err)})
		return
	}

	c.JSON(http.StatusCreated, tenant)
}

func (a Api) GetTenant(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /tenants/:id"})
		return
	}

	tenant, err := a.ledgersnap.GetTenant(c.Request.Context(), id)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": friendlyError(err)})
		return
	}

	c.JSON(http.StatusOK, tenant)
}

func (a Api) GetAllTenants(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	tenants, err := a.ledgersnap.ListTenants(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": friendlyError(err)})
		return
	}

	c.JSON(http.StatusOK, tenants)
}

// InviteUser creates a staff member under a tenant. The response carries the
// bearer token once; it is never retrievable again.
func (a Api) InviteUser(c *gin.Context) {
	tenantID, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /tenants/:id/users"})
		return
	}

	var req model2.InviteUser
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	if err := req.ValidateInviteUser(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, token, err := a.ledgersnap.InviteUser(c.Request.Context(), tenantID, req.Email, req.Name, req.Role)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": friendlyError(err)})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user": user, "token": token})
}

func (a Api) ListUsers(c *gin.Context) {
	tenantID, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /tenants/:id/users"})
		return
	}

	users, err := a.ledgersnap.ListUsers(c.Request.Context(), tenantID)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": friendlyError(err)})
		return
	}

	c.JSON(http.StatusOK, users)
}

func (a Api) UpdateUserStatus(c *gin.Context) {
	userID, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /users/:id/status"})
		return
	}

	var req model2.UpdateUserStatus
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	if err := req.ValidateUpdateUserStatus(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := a.ledgersnap.SetUserStatus(c.Request.Context(), userID, req.Status); err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": friendlyError(err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": req.Status})
}
