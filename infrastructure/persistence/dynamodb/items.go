package dynamodb

import (
	"fmt"
	"strings"
	"time"

	"referralnet-backend/domain/assignment"
	"referralnet-backend/domain/network"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const profileSK = "PROFILE"

// agentItem represents the DynamoDB item structure for an agent
type agentItem struct {
	PK           string  `dynamodbav:"PK"`
	SK           string  `dynamodbav:"SK"`
	EntityType   string  `dynamodbav:"EntityType"`
	AgentID      string  `dynamodbav:"AgentID"`
	DisplayName  string  `dynamodbav:"DisplayName"`
	Role         string  `dynamodbav:"Role"`
	Region       string  `dynamodbav:"Region"`
	IsActive     bool    `dynamodbav:"IsActive"`
	ParentID     *string `dynamodbav:"ParentID,omitempty"`
	CanRecruit   bool    `dynamodbav:"CanRecruit"`
	ReferralCode *string `dynamodbav:"ReferralCode,omitempty"`
	CreatedAt    string  `dynamodbav:"CreatedAt"`
}

// leadItem represents the DynamoDB item structure for a lead. RegionKey is
// the normalized region the region index is keyed on.
type leadItem struct {
	PK              string   `dynamodbav:"PK"`
	SK              string   `dynamodbav:"SK"`
	EntityType      string   `dynamodbav:"EntityType"`
	LeadID          string   `dynamodbav:"LeadID"`
	AssignedAgentID *string  `dynamodbav:"AssignedAgentID,omitempty"`
	RefCode         *string  `dynamodbav:"RefCode,omitempty"`
	Region          string   `dynamodbav:"Region"`
	RegionKey       string   `dynamodbav:"RegionKey"`
	VisibleTo       []string `dynamodbav:"VisibleTo,omitempty"`
	CreatedAt       string   `dynamodbav:"CreatedAt"`
}

func agentPK(id string) string { return fmt.Sprintf("AGENT#%s", id) }

func leadPK(id string) string { return fmt.Sprintf("LEAD#%s", id) }

func agentKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: agentPK(id)},
		"SK": &types.AttributeValueMemberS{Value: profileSK},
	}
}

func leadKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: leadPK(id)},
		"SK": &types.AttributeValueMemberS{Value: profileSK},
	}
}

func newAgentItem(a network.AgentRecord) agentItem {
	return agentItem{
		PK:           agentPK(a.ID),
		SK:           profileSK,
		EntityType:   "AGENT",
		AgentID:      a.ID,
		DisplayName:  a.DisplayName,
		Role:         string(a.Role),
		Region:       a.Region,
		IsActive:     a.IsActive,
		ParentID:     a.ParentID,
		CanRecruit:   a.CanRecruit,
		ReferralCode: a.ReferralCode,
		CreatedAt:    a.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (i agentItem) toRecord() network.AgentRecord {
	id := i.AgentID
	if id == "" {
		id = strings.TrimPrefix(i.PK, "AGENT#")
	}
	return network.AgentRecord{
		ID:           id,
		DisplayName:  i.DisplayName,
		Role:         network.Role(i.Role),
		Region:       i.Region,
		IsActive:     i.IsActive,
		ParentID:     i.ParentID,
		CanRecruit:   i.CanRecruit,
		ReferralCode: i.ReferralCode,
		CreatedAt:    parseTime(i.CreatedAt),
	}
}

func newLeadItem(l network.Lead) leadItem {
	return leadItem{
		PK:              leadPK(l.ID),
		SK:              profileSK,
		EntityType:      "LEAD",
		LeadID:          l.ID,
		AssignedAgentID: l.AssignedAgentID,
		RefCode:         l.RefCode,
		Region:          l.Region,
		RegionKey:       assignment.NormalizeRegion(l.Region),
		VisibleTo:       l.VisibleTo,
		CreatedAt:       l.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (i leadItem) toLead() network.Lead {
	id := i.LeadID
	if id == "" {
		id = strings.TrimPrefix(i.PK, "LEAD#")
	}
	return network.Lead{
		ID:              id,
		AssignedAgentID: i.AssignedAgentID,
		RefCode:         i.RefCode,
		Region:          i.Region,
		VisibleTo:       i.VisibleTo,
		CreatedAt:       parseTime(i.CreatedAt),
	}
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
