package handlers

import (
	"net/http"

	"chatroom-server/internal/chatroom"
)

type CreateRoleRequest struct {
	RoomID            uint   `json:"room_id"`
	Name              string `json:"name"`
	CanDeleteMessages bool   `json:"can_delete_messages"`
	CanBanUsers       bool   `json:"can_ban_users"`
	CanManageRoles    bool   `json:"can_manage_roles"`
}

type UpdateRoleRequest struct {
	RoleID            uint    `json:"role_id"`
	Name              *string `json:"name,omitempty"`
	CanDeleteMessages *bool   `json:"can_delete_messages,omitempty"`
	CanBanUsers       *bool   `json:"can_ban_users,omitempty"`
	CanManageRoles    *bool   `json:"can_manage_roles,omitempty"`
}

type RoleRequest struct {
	RoleID uint `json:"role_id"`
}

type AssignRoleRequest struct {
	RoomID uint   `json:"room_id"`
	RoleID uint   `json:"role_id"`
	UserID string `json:"user_id"`
}

// GetRolesHandler lists a room's roles, or the roles held by ?user_id.
func GetRolesHandler(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	roomID, ok := queryID(w, r, "room_id")
	if !ok {
		return
	}

	var (
		roles []chatroom.Role
		err   error
	)
	if userID := r.URL.Query().Get("user_id"); userID != "" {
		roles, err = Rooms.ListMemberRoles(r.Context(), roomID, userID)
	} else {
		roles, err = Rooms.ListRoles(r.Context(), roomID)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roles)
}

// GetCapabilitiesHandler reports the effective capabilities of ?user_id
// (default: the caller) in a room.
func GetCapabilitiesHandler(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	roomID, ok := queryID(w, r, "room_id")
	if !ok {
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = currentUserID(r)
	}

	caps, err := Rooms.Capabilities(r.Context(), roomID, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, caps)
}

func CreateRoleHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateRoleRequest
	if !decodePost(w, r, &req) {
		return
	}

	grants := chatroom.CapabilitySet{
		DeleteMessages: req.CanDeleteMessages,
		BanUsers:       req.CanBanUsers,
		ManageRoles:    req.CanManageRoles,
	}
	role, err := Rooms.CreateRole(r.Context(), req.RoomID, currentUserID(r), req.Name, grants)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, role)
}

func UpdateRoleHandler(w http.ResponseWriter, r *http.Request) {
	var req UpdateRoleRequest
	if !decodePost(w, r, &req) {
		return
	}

	role, err := Rooms.UpdateRole(r.Context(), req.RoleID, currentUserID(r), chatroom.RoleUpdate{
		Name:              req.Name,
		CanDeleteMessages: req.CanDeleteMessages,
		CanBanUsers:       req.CanBanUsers,
		CanManageRoles:    req.CanManageRoles,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

func DeleteRoleHandler(w http.ResponseWriter, r *http.Request) {
	var req RoleRequest
	if !decodePost(w, r, &req) {
		return
	}

	if err := Rooms.DeleteRole(r.Context(), req.RoleID, currentUserID(r)); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

func AssignRoleHandler(w http.ResponseWriter, r *http.Request) {
	var req AssignRoleRequest
	if !decodePost(w, r, &req) {
		return
	}

	if err := Rooms.AssignRole(r.Context(), req.RoomID, req.RoleID, req.UserID, currentUserID(r)); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

func UnassignRoleHandler(w http.ResponseWriter, r *http.Request) {
	var req AssignRoleRequest
	if !decodePost(w, r, &req) {
		return
	}

	if err := Rooms.UnassignRole(r.Context(), req.RoomID, req.RoleID, req.UserID, currentUserID(r)); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}
