package service

import (
	"context"

	"github.com/templui/pixelplan/internal/model"
)

type Action string

const (
	ActionListImages       Action = "list_images"
	ActionViewOriginal     Action = "view_original"
	ActionCreateLink       Action = "create_link"
	ActionListThumbnails   Action = "list_thumbnails"
	ActionFetchLinkContent Action = "fetch_link_content"
)

// decide is the pure access rule table. image may be nil for collection actions.
func decide(action Action, ent *model.Entitlement, userID string, image *model.Image) error {
	if action == ActionFetchLinkContent {
		// Possession of a live link id is the only requirement.
		return nil
	}

	if userID == "" {
		return &PermissionError{Action: action, Reason: "authentication required"}
	}

	ownsImage := image == nil || image.OwnedBy(userID)

	switch action {
	case ActionListImages, ActionListThumbnails:
		if !ownsImage {
			return &PermissionError{Action: action, Reason: "image belongs to another user"}
		}
		return nil

	case ActionViewOriginal:
		if !ownsImage {
			return &PermissionError{Action: action, Reason: "image belongs to another user"}
		}
		if ent == nil || !ent.CanViewOriginal {
			return &PermissionError{Action: action, Reason: "plan does not include original images"}
		}
		return nil

	case ActionCreateLink:
		if image == nil || !image.OwnedBy(userID) {
			return &PermissionError{Action: action, Reason: "only the uploader can share an image"}
		}
		if ent == nil || !ent.CanCreateLink {
			return &PermissionError{Action: action, Reason: "plan does not include expirable links"}
		}
		return nil
	}

	return &PermissionError{Action: action, Reason: "unknown action"}
}

// AccessService applies the access rules to a user's resolved entitlement.
type AccessService struct {
	entitlementService *EntitlementService
}

func NewAccessService(entitlementService *EntitlementService) *AccessService {
	return &AccessService{entitlementService: entitlementService}
}

// Check returns the caller's entitlement when the action is allowed.
// Anonymous link fetches carry no entitlement and return nil.
func (s *AccessService) Check(ctx context.Context, action Action, userID string, image *model.Image) (*model.Entitlement, error) {
	if action == ActionFetchLinkContent || userID == "" {
		return nil, decide(action, nil, userID, image)
	}

	ent, err := s.entitlementService.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}

	err = decide(action, ent, userID, image)
	if err != nil {
		return nil, err
	}
	return ent, nil
}
