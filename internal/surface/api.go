// ABOUTME: HTTP JSON handlers for community, member, binding and connector registration
// ABOUTME: Every mutation emits a provenance record alongside its store write

package surface

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cobrachicken/scope-relay/internal/store"
)

// CreateCommunityRequest is the JSON request body for POST /communities.
type CreateCommunityRequest struct {
	Name       string `json:"name"`
	Slug       string `json:"slug"`
	OwnerEmail string `json:"owner_email"`
}

// CommunityResponse is the JSON representation of a community scope.
type CommunityResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Slug       string `json:"slug"`
	OwnerEmail string `json:"owner_email"`
	CreatedAt  string `json:"created_at"`
}

// RegisterMemberRequest is the JSON request body for POST /members.
type RegisterMemberRequest struct {
	CommunitySlug   string            `json:"community_slug"`
	DisplayName     string            `json:"display_name"`
	Email           string            `json:"email"`
	Archetype       string            `json:"archetype,omitempty"`
	PlatformHandles map[string]string `json:"platform_handles"`
	IsAgent         bool              `json:"is_agent,omitempty"`
}

// ClaimInstruction tells a new member how to verify one platform handle.
type ClaimInstruction struct {
	Platform    string `json:"platform"`
	Handle      string `json:"handle"`
	Instruction string `json:"instruction"`
}

// RegisterMemberResponse is the JSON response for POST /members.
type RegisterMemberResponse struct {
	MemberID     string             `json:"member_id"`
	DisplayName  string             `json:"display_name"`
	Verification []ClaimInstruction `json:"verification"`
}

// VerifyMemberRequest is the JSON request body for POST /members/verify.
type VerifyMemberRequest struct {
	MemberID string `json:"member_id"`
	Platform string `json:"platform"`
	Code     string `json:"code"`
}

// RegisterBindingRequest is the JSON request body for POST /bindings and
// POST /connectors. OwnerEmail must match the community owner.
type RegisterBindingRequest struct {
	CommunitySlug    string            `json:"community_slug"`
	OwnerEmail       string            `json:"owner_email"`
	Platform         string            `json:"platform"`
	DefaultChannelID string            `json:"default_channel_id,omitempty"`
	Config           map[string]string `json:"config,omitempty"`
}

// ProvenanceRecordResponse is one record in the provenance listing.
type ProvenanceRecordResponse struct {
	ID             string         `json:"id"`
	Action         string         `json:"action"`
	SourcePlatform *string        `json:"source_platform"`
	SourceIdentity *string        `json:"source_identity"`
	SubjectID      *string        `json:"subject_id"`
	Detail         map[string]any `json:"detail"`
	Timestamp      string         `json:"timestamp"`
}

// handleCreateCommunity handles POST /communities.
// Returns 409 if the slug is already taken.
func (s *Server) handleCreateCommunity(w http.ResponseWriter, r *http.Request) {
	var req CreateCommunityRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name == "" || req.Slug == "" || req.OwnerEmail == "" {
		s.sendJSONError(w, http.StatusBadRequest, "name, slug and owner_email are required")
		return
	}

	scope := &store.Scope{Name: req.Name, Slug: req.Slug, OwnerID: req.OwnerEmail}
	if err := s.store.CreateScope(r.Context(), scope); err != nil {
		if errors.Is(err, store.ErrDuplicateSlug) {
			s.sendJSONError(w, http.StatusConflict, "slug already taken")
			return
		}
		s.logger.Error("failed to create community", "slug", req.Slug, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.appendProvenance(r, &store.Provenance{
		ScopeID:        scope.ID,
		Action:         store.ActionScopeCreated,
		SourceIdentity: &req.OwnerEmail,
		SubjectID:      &scope.ID,
		Detail:         map[string]any{"name": scope.Name, "slug": scope.Slug},
	})

	s.logger.Info("community created", "slug", scope.Slug, "id", scope.ID)
	s.sendJSON(w, http.StatusCreated, communityResponse(scope))
}

// handleGetCommunity handles GET /communities/{slug}.
func (s *Server) handleGetCommunity(w http.ResponseWriter, r *http.Request) {
	scope, err := s.store.GetScopeBySlug(r.Context(), r.PathValue("slug"))
	if errors.Is(err, store.ErrScopeNotFound) {
		s.sendJSONError(w, http.StatusNotFound, "community not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to load community", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.sendJSON(w, http.StatusOK, communityResponse(scope))
}

// handleRegisterMember handles POST /members.
// Creates the member with one unverified identity claim per declared
// platform handle and returns per-platform verification instructions.
func (s *Server) handleRegisterMember(w http.ResponseWriter, r *http.Request) {
	var req RegisterMemberRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.CommunitySlug == "" || req.DisplayName == "" || req.Email == "" {
		s.sendJSONError(w, http.StatusBadRequest, "community_slug, display_name and email are required")
		return
	}

	scope, err := s.store.GetScopeBySlug(r.Context(), req.CommunitySlug)
	if errors.Is(err, store.ErrScopeNotFound) {
		s.sendJSONError(w, http.StatusNotFound, "community not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to load community", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	archetype := req.Archetype
	if archetype == "" {
		archetype = "member"
	}

	member := &store.Member{
		ScopeID:           scope.ID,
		ArchetypeName:     archetype,
		DisplayName:       req.DisplayName,
		CanonicalIdentity: req.Email,
		PlatformHandles:   req.PlatformHandles,
		IsAgent:           req.IsAgent,
	}
	codes, err := s.store.CreateMember(r.Context(), member)
	if err != nil {
		s.logger.Error("failed to register member", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	platforms := make([]string, 0, len(req.PlatformHandles))
	instructions := make([]ClaimInstruction, 0, len(codes))
	for platform, handle := range req.PlatformHandles {
		platforms = append(platforms, platform)
		instructions = append(instructions, ClaimInstruction{
			Platform: platform,
			Handle:   handle,
			Instruction: fmt.Sprintf("Send \"VERIFY %s\" from your %s account to link this handle.",
				codes[platform], platform),
		})
	}

	s.appendProvenance(r, &store.Provenance{
		ScopeID:        scope.ID,
		Action:         store.ActionMemberRegistered,
		SourceIdentity: &req.Email,
		SubjectID:      &member.ID,
		Detail:         map[string]any{"display_name": member.DisplayName, "platforms": platforms},
	})

	s.logger.Info("member registered",
		"member_id", member.ID,
		"scope", scope.Slug,
		"claims", len(instructions),
	)
	s.sendJSON(w, http.StatusCreated, RegisterMemberResponse{
		MemberID:     member.ID,
		DisplayName:  member.DisplayName,
		Verification: instructions,
	})
}

// handleVerifyMember handles POST /members/verify: the out-of-band
// verification path for claims not verified via an in-platform command.
func (s *Server) handleVerifyMember(w http.ResponseWriter, r *http.Request) {
	var req VerifyMemberRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.MemberID == "" || req.Platform == "" || req.Code == "" {
		s.sendJSONError(w, http.StatusBadRequest, "member_id, platform and code are required")
		return
	}

	ok, err := s.store.VerifyClaim(r.Context(), req.MemberID, req.Platform, req.Code)
	if err != nil {
		s.logger.Error("failed to verify claim", "member_id", req.MemberID, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !ok {
		// Wrong code and already-used code are indistinguishable on purpose
		s.sendJSONError(w, http.StatusBadRequest, "Invalid or already-used code.")
		return
	}

	s.sendJSON(w, http.StatusOK, map[string]bool{"verified": true})
}

// handleRegisterBinding handles POST /bindings.
// Only the community owner may register integrations.
func (s *Server) handleRegisterBinding(w http.ResponseWriter, r *http.Request) {
	s.registerIntegration(w, r, "binding")
}

// handleRegisterConnector handles POST /connectors.
func (s *Server) handleRegisterConnector(w http.ResponseWriter, r *http.Request) {
	s.registerIntegration(w, r, "connector")
}

// registerIntegration is the shared path behind POST /bindings and
// POST /connectors; the two differ only in direction and provenance action.
func (s *Server) registerIntegration(w http.ResponseWriter, r *http.Request, kind string) {
	var req RegisterBindingRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.CommunitySlug == "" || req.Platform == "" {
		s.sendJSONError(w, http.StatusBadRequest, "community_slug and platform are required")
		return
	}

	scope, err := s.store.GetScopeBySlug(r.Context(), req.CommunitySlug)
	if errors.Is(err, store.ErrScopeNotFound) {
		s.sendJSONError(w, http.StatusNotFound, "community not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to load community", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if req.OwnerEmail != scope.OwnerID {
		s.sendJSONError(w, http.StatusForbidden, "only the community owner may register integrations")
		return
	}

	config := make(map[string]string, len(req.Config)+1)
	for k, v := range req.Config {
		config[k] = v
	}
	if req.DefaultChannelID != "" {
		config["default_channel_id"] = req.DefaultChannelID
	}

	var id string
	var action store.ProvenanceAction
	switch kind {
	case "binding":
		b := &store.Binding{ScopeID: scope.ID, Platform: req.Platform, Config: config, Active: true}
		if err := s.store.UpsertBinding(r.Context(), b); err != nil {
			s.logger.Error("failed to register binding", "platform", req.Platform, "error", err)
			s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		id, action = b.ID, store.ActionBindingRegistered
	case "connector":
		c := &store.Connector{ScopeID: scope.ID, Platform: req.Platform, Config: config, Active: true}
		if err := s.store.UpsertConnector(r.Context(), c); err != nil {
			s.logger.Error("failed to register connector", "platform", req.Platform, "error", err)
			s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		id, action = c.ID, store.ActionConnectorRegistered
	}

	s.appendProvenance(r, &store.Provenance{
		ScopeID:        scope.ID,
		Action:         action,
		SourceIdentity: &req.OwnerEmail,
		SubjectID:      &id,
		Detail:         map[string]any{"platform": req.Platform},
	})

	s.logger.Info(kind+" registered", "platform", req.Platform, "scope", scope.Slug)
	s.sendJSON(w, http.StatusCreated, map[string]string{"id": id, "platform": req.Platform})
}

// handleListProvenance handles GET /communities/{slug}/provenance.
// Read-only; there is no mutation surface for provenance at all.
func (s *Server) handleListProvenance(w http.ResponseWriter, r *http.Request) {
	scope, err := s.store.GetScopeBySlug(r.Context(), r.PathValue("slug"))
	if errors.Is(err, store.ErrScopeNotFound) {
		s.sendJSONError(w, http.StatusNotFound, "community not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to load community", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if _, err := fmt.Sscanf(raw, "%d", &limit); err != nil {
			s.sendJSONError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
	}

	records, err := s.store.ListProvenance(r.Context(), scope.ID, limit)
	if err != nil {
		s.logger.Error("failed to list provenance", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	response := make([]ProvenanceRecordResponse, 0, len(records))
	for _, rec := range records {
		response = append(response, ProvenanceRecordResponse{
			ID:             rec.ID,
			Action:         string(rec.Action),
			SourcePlatform: rec.SourcePlatform,
			SourceIdentity: rec.SourceIdentity,
			SubjectID:      rec.SubjectID,
			Detail:         rec.Detail,
			Timestamp:      rec.Timestamp.UTC().Format(time.RFC3339),
		})
	}

	s.sendJSON(w, http.StatusOK, map[string]any{"records": response})
}

// appendProvenance records a surface action. A surface write that
// succeeded is never rolled back because its provenance append failed;
// the failure is logged instead.
func (s *Server) appendProvenance(r *http.Request, p *store.Provenance) {
	if err := s.store.AppendProvenance(r.Context(), p); err != nil {
		s.logger.Error("failed to append provenance", "action", p.Action, "error", err)
	}
}

func communityResponse(scope *store.Scope) CommunityResponse {
	return CommunityResponse{
		ID:         scope.ID,
		Name:       scope.Name,
		Slug:       scope.Slug,
		OwnerEmail: scope.OwnerID,
		CreatedAt:  scope.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// decodeJSON parses a JSON request body.
func decodeJSON(r io.Reader, v any) error {
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}
