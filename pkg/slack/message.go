package slack

import (
	"fmt"

	goslack "github.com/slack-go/slack"

	"github.com/specforge/specforge/pkg/approval"
	"github.com/specforge/specforge/pkg/models"
)

const maxBlockTextLength = 2900

var decisionEmoji = map[models.ApprovalDecision]string{
	models.DecisionApproved: ":white_check_mark:",
	models.DecisionRejected: ":x:",
	models.DecisionModified: ":pencil2:",
}

var decisionLabel = map[models.ApprovalDecision]string{
	models.DecisionApproved: "Proposal Approved",
	models.DecisionRejected: "Proposal Rejected",
	models.DecisionModified: "Proposal Approved With Modifications",
}

func proposalURL(proposalID, dashboardURL string) string {
	return fmt.Sprintf("%s/proposals/%s", dashboardURL, proposalID)
}

// BuildRequestMessage creates Block Kit blocks for an approval request.
func BuildRequestMessage(req *models.ApprovalRequest, dashboardURL string) []goslack.Block {
	text := fmt.Sprintf(":bell: *Approval requested* for proposal `%s` (confidence %.2f).",
		req.ProposalID, req.Confidence)
	if req.Reasoning != "" {
		text += "\n" + truncateForSlack(req.Reasoning)
	}
	url := proposalURL(req.ProposalID, dashboardURL)

	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false),
			nil, nil,
		),
	}
	btn := goslack.NewButtonBlockElement("", "", goslack.NewTextBlockObject(goslack.PlainTextType, "Review in Dashboard", false, false))
	btn.URL = url
	blocks = append(blocks, goslack.NewActionBlock("", btn))
	return blocks
}

// BuildOutcomeMessage creates Block Kit blocks for a settled approval.
func BuildOutcomeMessage(req *models.ApprovalRequest, resp *models.ApprovalResponse, dashboardURL string) []goslack.Block {
	emoji := decisionEmoji[resp.Decision]
	if emoji == "" {
		emoji = ":question:"
	}
	label := decisionLabel[resp.Decision]
	if label == "" {
		label = "Proposal " + string(resp.Decision)
	}
	if resp.Reason == approval.TimeoutReason {
		emoji = ":hourglass:"
		label = "Proposal Expired Without Response"
	}

	text := fmt.Sprintf("%s *%s* — proposal `%s`", emoji, label, req.ProposalID)
	if resp.Reason != "" && resp.Reason != approval.TimeoutReason {
		text += fmt.Sprintf("\n\n*Reason:*\n%s", truncateForSlack(resp.Reason))
	}

	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false),
			nil, nil,
		),
	}
	btn := goslack.NewButtonBlockElement("", "", goslack.NewTextBlockObject(goslack.PlainTextType, "View Proposal", false, false))
	btn.URL = proposalURL(req.ProposalID, dashboardURL)
	blocks = append(blocks, goslack.NewActionBlock("", btn))
	return blocks
}

func truncateForSlack(text string) string {
	if len(text) <= maxBlockTextLength {
		return text
	}
	return text[:maxBlockTextLength] + "\n\n_... (truncated — view full proposal in dashboard)_"
}
