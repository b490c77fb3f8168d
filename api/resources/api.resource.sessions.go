// FilePath: api/resources/api.resource.sessions.go
package resources

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/itsatony/relayhub/api/middleware"
	"github.com/itsatony/relayhub/internal/errors"
	"github.com/itsatony/relayhub/internal/models"
	"github.com/itsatony/relayhub/internal/session"
	"github.com/itsatony/struccy"
	nuts "github.com/vaudience/go-nuts"
)

const snapshotTimeout = 2 * time.Second

// SessionHandlers encapsulates the live-session HTTP handlers.
type SessionHandlers struct {
	deps Deps
}

type sessionInfo struct {
	Email    string `json:"email"`
	Hardware int    `json:"hardware"`
	Apps     int    `json:"apps"`
}

// ListSessions returns every live session with its connection counts.
func (h *SessionHandlers) ListSessions(w http.ResponseWriter, _ *http.Request) {
	out := make([]sessionInfo, 0, h.deps.Registry.Count())
	h.deps.Registry.ForEach(func(s *session.Session) {
		out = append(out, sessionInfo{
			Email:    s.Email,
			Hardware: s.HardwareCount(),
			Apps:     s.AppCount(),
		})
	})
	respondWithJSON(w, http.StatusOK, out)
}

// ListSessionDevices returns the devices of one account across all its
// dashboards, filtered by the caller's read access. The snapshot is taken
// on the session loop so it never races live handlers.
func (h *SessionHandlers) ListSessionDevices(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)
	email := mux.Vars(r)["email"]

	sess, ok := h.deps.Registry.Get(email)
	if !ok {
		respondWithError(w, errors.NewNotFoundError("no session for account", nil).WithRequestID(requestID))
		return
	}

	type dashDevices struct {
		DashID  int
		Devices []models.Device
	}
	snapshot := make(chan []dashDevices, 1)
	sess.Post(func() {
		out := make([]dashDevices, 0, len(sess.Profile.DashBoards))
		for _, dash := range sess.Profile.DashBoards {
			dd := dashDevices{DashID: dash.ID}
			for _, dev := range dash.Devices {
				dd.Devices = append(dd.Devices, *dev)
			}
			out = append(out, dd)
		}
		snapshot <- out
	})

	var dashes []dashDevices
	select {
	case dashes = <-snapshot:
	case <-time.After(snapshotTimeout):
		respondWithError(w, errors.NewUnavailableError("session busy", nil).WithRequestID(requestID))
		return
	}

	roles := middleware.GetRoles(r.Context())
	type deviceList struct {
		DashID  int              `json:"dashId"`
		Devices []*models.Device `json:"devices"`
	}
	out := make([]deviceList, 0, len(dashes))
	for _, dd := range dashes {
		list := deviceList{DashID: dd.DashID, Devices: []*models.Device{}}
		for i := range dd.Devices {
			filteredMap, err := struccy.StructToMapFieldsWithReadXS(&dd.Devices[i], roles)
			if err != nil {
				nuts.L.Warnf("[SessionHandler] Failed to filter device %d: %v", dd.Devices[i].ID, err)
				continue
			}
			filtered := &models.Device{}
			if _, err = struccy.MergeMapStringFieldsToStruct(filtered, filteredMap, roles); err != nil {
				nuts.L.Warnf("[SessionHandler] Failed to map filtered device %d: %v", dd.Devices[i].ID, err)
				continue
			}
			list.Devices = append(list.Devices, filtered)
		}
		out = append(out, list)
	}

	respondWithJSON(w, http.StatusOK, out)
}
