package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/luiznunees/backend-canaldireto/internal/domain"
	"github.com/luiznunees/backend-canaldireto/internal/observability/metrics"
)

// WorkflowTrigger is the slice of the workflow engine client the campaign
// service needs; *workflow.Client satisfies it.
type WorkflowTrigger interface {
	Trigger(ctx context.Context, payload any) (int, []byte, error)
}

// CampaignService validates campaign requests against the reconciled
// connection state and forwards them to the workflow engine. It never
// interprets the engine's response; status and body are relayed unchanged.
type CampaignService struct {
	instances *InstanceService
	flow      WorkflowTrigger
}

func NewCampaignService(instances *InstanceService, flow WorkflowTrigger) *CampaignService {
	return &CampaignService{instances: instances, flow: flow}
}

type CampaignInput struct {
	UserID   string `json:"user_id"`
	Name     string `json:"name"`
	Message  string `json:"message"`
	MediaURL string `json:"media_url,omitempty"`
}

type campaignPayload struct {
	CampaignInput
	InstanceName string `json:"instance_name"`
	PhoneNumber  string `json:"phone_number"`
}

// Launch requires the caller's instance to be connected, then hands the
// enriched payload to the workflow engine and relays its verdict.
func (c *CampaignService) Launch(ctx context.Context, in CampaignInput) (int, []byte, error) {
	if in.UserID == "" || in.Name == "" || in.Message == "" {
		return 0, nil, fmt.Errorf("%w: user_id, name and message are required", ErrInvalidRequest)
	}

	rec, err := c.instances.ActiveInstance(ctx, in.UserID)
	if err != nil {
		return 0, nil, err
	}
	if rec.Status != domain.StatusConnected {
		return 0, nil, fmt.Errorf("%w: instance %s is %s", ErrInstanceNotConnected, rec.InstanceName, rec.Status)
	}

	status, body, err := c.flow.Trigger(ctx, campaignPayload{
		CampaignInput: in,
		InstanceName:  rec.InstanceName,
		PhoneNumber:   rec.PhoneNumber,
	})
	if err != nil {
		metrics.CampaignForwardsTotal.WithLabelValues("failure").Inc()
		return 0, nil, fmt.Errorf("%w: workflow trigger: %v", ErrUpstream, err)
	}
	metrics.CampaignForwardsTotal.WithLabelValues("success").Inc()
	slog.Info("campaign forwarded", "user_id", in.UserID, "campaign", in.Name,
		"instance", rec.InstanceName, "upstream_status", status)
	return status, body, nil
}
