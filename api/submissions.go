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

	"github.com/ledgersnap/ledgersnap"
	"github.com/ledgersnap/ledgersnap/api/middleware"
	model2 "github.com/ledgersnap/ledgersnap/api/model"
	"github.com/ledgersnap/ledgersnap/internal/apierror"
	"github.com/ledgersnap/ledgersnap/model"
)

// CreateSubmission accepts a submission through the idempotency gate.
// 202 means the work is (or already was) queued; 200 answers a duplicate of
// an already-finished submission with its recorded outcome.
func (a Api) CreateSubmission(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing bearer token"})
		return
	}

	var req model2.CreateSubmission
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	if err := req.ValidateCreateSubmission(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ack, err := a.ledgersnap.AcceptSubmission(c.Request.Context(), user, model.SubmissionType(req.Type), req.IdempotencyKey, req.Payload)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": friendlyError(err)})
		return
	}

	c.JSON(ackStatusCode(ack), ack)
}

// ackStatusCode maps an acknowledgment to its HTTP status: terminal outcomes
// answer 200, anything still moving answers 202.
func ackStatusCode(ack *ledgersnap.SubmissionAck) int {
	switch ack.Status {
	case model.StatusCompleted, model.StatusFailed:
		return http.StatusOK
	default:
		return http.StatusAccepted
	}
}

func (a Api) GetSubmission(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing bearer token"})
		return
	}

	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /submissions/:id"})
		return
	}

	record, err := a.ledgersnap.GetSubmission(c.Request.Context(), user, id)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": friendlyError(err)})
		return
	}

	c.JSON(http.StatusOK, record)
}

func (a Api) ListSubmissions(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing bearer token"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	submissions, err := a.ledgersnap.ListSubmissions(c.Request.Context(), user, limit)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": friendlyError(err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"submissions": submissions})
}

// friendlyError keeps internal detail out of responses while passing API
// error messages through.
func friendlyError(err error) string {
	if apiErr, ok := err.(apierror.APIError); ok {
		return apiErr.Message
	}
	return "internal server error"
}
