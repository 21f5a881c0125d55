package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/agora/internal/handlers"
	"github.com/BradenHooton/agora/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAdminHandler(threats *handlers.MockThreatAdmin, users *handlers.MockUserService, catalog *handlers.MockCatalogService) *handlers.AdminHandler {
	return handlers.NewAdminHandler(threats, users, catalog, handlers.NewTestLogger())
}

func TestAdmin_ListLocked(t *testing.T) {
	until := time.Now().Add(time.Hour).UTC()
	threats := &handlers.MockThreatAdmin{
		ListLockedFunc: func(context.Context) ([]*models.ThreatStatus, error) {
			return []*models.ThreatStatus{{Username: "alice", Locked: true, Reason: "rapid attempts", UnblockAt: &until}}, nil
		},
	}
	req := handlers.WithAuthContext(httptest.NewRequest(http.MethodGet, "/admin/threats", nil), "root", models.RoleAdmin)
	w := httptest.NewRecorder()
	newAdminHandler(threats, &handlers.MockUserService{}, &handlers.MockCatalogService{}).ListLocked(w, req)

	var locked []models.ThreatStatus
	handlers.AssertJSONResponse(t, w, http.StatusOK, &locked)
	require.Len(t, locked, 1)
	assert.Equal(t, "alice", locked[0].Username)
}

func TestAdmin_UnlockAndDelete(t *testing.T) {
	threats := &handlers.MockThreatAdmin{
		UnlockFunc: func(_ context.Context, username string) (int64, error) {
			assert.Equal(t, "alice", username)
			return 3, nil
		},
		DeleteHistoryFunc: func(_ context.Context, username string) (int64, error) {
			return 7, nil
		},
	}
	h := newAdminHandler(threats, &handlers.MockUserService{}, &handlers.MockCatalogService{})

	req := httptest.NewRequest(http.MethodPost, "/admin/threats/alice/unlock", nil)
	req = handlers.WithChiRouteContext(handlers.WithMasterKeyContext(req), map[string]string{"username": "alice"})
	w := httptest.NewRecorder()
	h.Unlock(w, req)

	var resp handlers.ClearedResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, int64(3), resp.Cleared)

	req = httptest.NewRequest(http.MethodDelete, "/admin/threats/alice", nil)
	req = handlers.WithChiRouteContext(handlers.WithMasterKeyContext(req), map[string]string{"username": "alice"})
	w = httptest.NewRecorder()
	h.DeleteHistory(w, req)

	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, int64(7), resp.Cleared)
}

func TestAdmin_SetVerification(t *testing.T) {
	t.Run("admin actor", func(t *testing.T) {
		users := &handlers.MockUserService{
			SetVerificationStatusFunc: func(_ context.Context, adminID, userID string, status models.VerificationStatus, notes string) (*models.Profile, error) {
				assert.Equal(t, "root", adminID)
				assert.Equal(t, "alice", userID)
				assert.Equal(t, models.VerificationVerified, status)
				assert.Equal(t, "id checked", notes)
				p := &models.Profile{UserID: userID, VerificationStatus: status}
				p.Normalize()
				return p, nil
			},
		}
		req := handlers.NewTestRequest(t, http.MethodPut, "/admin/users/alice/verification",
			handlers.SetVerificationRequest{Status: models.VerificationVerified, Notes: "id checked"})
		req = handlers.WithChiRouteContext(handlers.WithAuthContext(req, "root", models.RoleAdmin), map[string]string{"id": "alice"})
		w := httptest.NewRecorder()
		newAdminHandler(&handlers.MockThreatAdmin{}, users, &handlers.MockCatalogService{}).SetVerification(w, req)

		var profile models.Profile
		handlers.AssertJSONResponse(t, w, http.StatusOK, &profile)
		assert.True(t, profile.IsVerified)
	})

	t.Run("master key actor", func(t *testing.T) {
		var actor string
		users := &handlers.MockUserService{
			SetVerificationStatusFunc: func(_ context.Context, adminID, userID string, status models.VerificationStatus, _ string) (*models.Profile, error) {
				actor = adminID
				return &models.Profile{UserID: userID, VerificationStatus: status}, nil
			},
		}
		req := handlers.NewTestRequest(t, http.MethodPut, "/admin/users/alice/verification",
			handlers.SetVerificationRequest{Status: models.VerificationRejected})
		req = handlers.WithChiRouteContext(handlers.WithMasterKeyContext(req), map[string]string{"id": "alice"})
		w := httptest.NewRecorder()
		newAdminHandler(&handlers.MockThreatAdmin{}, users, &handlers.MockCatalogService{}).SetVerification(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "master-key", actor)
	})

	t.Run("unknown status", func(t *testing.T) {
		req := handlers.NewTestRequest(t, http.MethodPut, "/admin/users/alice/verification",
			handlers.SetVerificationRequest{Status: "MAYBE"})
		req = handlers.WithChiRouteContext(handlers.WithAuthContext(req, "root", models.RoleAdmin), map[string]string{"id": "alice"})
		w := httptest.NewRecorder()
		newAdminHandler(&handlers.MockThreatAdmin{}, &handlers.MockUserService{}, &handlers.MockCatalogService{}).SetVerification(w, req)
		handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
	})
}

func TestAdmin_SetActive(t *testing.T) {
	users := &handlers.MockUserService{
		SetActiveFunc: func(_ context.Context, adminID, userID string, active bool) error {
			if adminID == userID && !active {
				return models.ErrBadRequest
			}
			return nil
		},
	}
	h := newAdminHandler(&handlers.MockThreatAdmin{}, users, &handlers.MockCatalogService{})

	inactive := false
	for target, want := range map[string]int{"alice": http.StatusNoContent, "root": http.StatusBadRequest} {
		req := handlers.NewTestRequest(t, http.MethodPut, "/admin/users/"+target+"/active", handlers.SetActiveRequest{Active: &inactive})
		req = handlers.WithChiRouteContext(handlers.WithAuthContext(req, "root", models.RoleAdmin), map[string]string{"id": target})
		w := httptest.NewRecorder()
		h.SetActive(w, req)
		assert.Equal(t, want, w.Code, target)
	}
}

func TestAdmin_FlagListing(t *testing.T) {
	catalog := &handlers.MockCatalogService{
		FlagListingFunc: func(_ context.Context, id string) (*models.Listing, error) {
			if id == "sold" {
				return nil, models.ErrInvalidTransition
			}
			return &models.Listing{ID: id, Status: models.ListingFlagged}, nil
		},
	}
	h := newAdminHandler(&handlers.MockThreatAdmin{}, &handlers.MockUserService{}, catalog)

	for id, want := range map[string]int{"l1": http.StatusOK, "sold": http.StatusConflict} {
		req := httptest.NewRequest(http.MethodPost, "/admin/listings/"+id+"/flag", nil)
		req = handlers.WithChiRouteContext(handlers.WithAuthContext(req, "root", models.RoleAdmin), map[string]string{"id": id})
		w := httptest.NewRecorder()
		h.FlagListing(w, req)
		assert.Equal(t, want, w.Code, id)
	}
}

func TestAdmin_InternalErrorsAreHidden(t *testing.T) {
	threats := &handlers.MockThreatAdmin{
		ListLockedFunc: func(context.Context) ([]*models.ThreatStatus, error) {
			return nil, errors.New("pq: connection refused to 10.0.0.5")
		},
	}
	req := handlers.WithAuthContext(httptest.NewRequest(http.MethodGet, "/admin/threats", nil), "root", models.RoleAdmin)
	w := httptest.NewRecorder()
	newAdminHandler(threats, &handlers.MockUserService{}, &handlers.MockCatalogService{}).ListLocked(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusInternalServerError, "internal_error")
	assert.NotContains(t, w.Body.String(), "10.0.0.5")
}
