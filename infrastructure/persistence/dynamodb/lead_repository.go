package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"referralnet-backend/application/ports"
	"referralnet-backend/domain/assignment"
	"referralnet-backend/domain/network"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// LeadRepository implements ports.LeadRepository using DynamoDB
type LeadRepository struct {
	client      API
	tableName   string
	regionIndex string
	logger      *zap.Logger
}

// NewLeadRepository creates a new LeadRepository
func NewLeadRepository(client API, tables Tables, logger *zap.Logger) *LeadRepository {
	return &LeadRepository{
		client:      client,
		tableName:   tables.Leads,
		regionIndex: tables.RegionIndex,
		logger:      logger,
	}
}

func unassignedFilter() expression.ConditionBuilder {
	return expression.Name("AssignedAgentID").AttributeNotExists().
		Or(expression.Name("AssignedAgentID").Equal(expression.Value("")))
}

// ListLeads scans the leads table
func (r *LeadRepository) ListLeads(ctx context.Context) ([]network.Lead, error) {
	expr, err := expression.NewBuilder().
		WithFilter(expression.Name("EntityType").Equal(expression.Value("LEAD"))).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	return r.scan(ctx, "ListLeads", &dynamodb.ScanInput{
		TableName:                 aws.String(r.tableName),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
}

// ListUnassignedLeads returns unowned leads, oldest first. A region narrows
// the read to the region index.
func (r *LeadRepository) ListUnassignedLeads(ctx context.Context, region string) ([]network.Lead, error) {
	var leads []network.Lead
	var err error

	key := assignment.NormalizeRegion(region)
	if key == "" || r.regionIndex == "" {
		leads, err = r.scanUnassigned(ctx)
	} else {
		leads, err = r.queryRegion(ctx, key)
	}
	if err != nil {
		return nil, err
	}

	// The server-side filter cannot trim whitespace owners
	out := leads[:0]
	for _, l := range leads {
		if l.IsAssigned() {
			continue
		}
		if key != "" && assignment.NormalizeRegion(l.Region) != key {
			continue
		}
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *LeadRepository) scanUnassigned(ctx context.Context) ([]network.Lead, error) {
	filter := expression.Name("EntityType").Equal(expression.Value("LEAD")).And(unassignedFilter())
	expr, err := expression.NewBuilder().WithFilter(filter).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	return r.scan(ctx, "ListUnassignedLeads", &dynamodb.ScanInput{
		TableName:                 aws.String(r.tableName),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
}

func (r *LeadRepository) queryRegion(ctx context.Context, regionKey string) ([]network.Lead, error) {
	expr, err := expression.NewBuilder().
		WithKeyCondition(expression.Key("RegionKey").Equal(expression.Value(regionKey))).
		WithFilter(unassignedFilter()).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(r.regionIndex),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}

	var leads []network.Lead
	paginator := dynamodb.NewQueryPaginator(r.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classify("ListUnassignedLeads", err)
		}
		var items []leadItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal leads: %w", err)
		}
		for _, item := range items {
			leads = append(leads, item.toLead())
		}
	}
	return leads, nil
}

func (r *LeadRepository) scan(ctx context.Context, operation string, input *dynamodb.ScanInput) ([]network.Lead, error) {
	var leads []network.Lead
	paginator := dynamodb.NewScanPaginator(r.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classify(operation, err)
		}
		var items []leadItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal leads: %w", err)
		}
		for _, item := range items {
			leads = append(leads, item.toLead())
		}
	}
	return leads, nil
}

// GetLead reads one lead
func (r *LeadRepository) GetLead(ctx context.Context, id string) (*network.Lead, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            leadKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, classify("GetLead", err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("lead %s: %w", id, network.ErrLeadNotFound)
	}

	var item leadItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lead: %w", err)
	}
	lead := item.toLead()
	return &lead, nil
}

// AssignLead sets the lead owner, replacing any existing one
func (r *LeadRepository) AssignLead(ctx context.Context, leadID, agentID string) error {
	return r.update(ctx, "AssignLead", leadID,
		expression.Set(expression.Name("AssignedAgentID"), expression.Value(strings.TrimSpace(agentID))))
}

// AssignUnassignedLead sets the lead owner only while the lead has none. A
// whitespace owner counts as none; that case is retried once conditioned on
// the exact stored value.
func (r *LeadRepository) AssignUnassignedLead(ctx context.Context, leadID, agentID string) error {
	owner := expression.Value(strings.TrimSpace(agentID))
	set := expression.Set(expression.Name("AssignedAgentID"), owner)

	old, err := r.assignIf(ctx, leadID, set, unassignedFilter())
	if err != nil || old == nil {
		return err
	}
	if old.IsAssigned() {
		return fmt.Errorf("lead %s owned by %s: %w", leadID, old.AssignedTo(), network.ErrLeadAlreadyAssigned)
	}

	stored := expression.Name("AssignedAgentID").Equal(expression.Value(aws.ToString(old.AssignedAgentID)))
	old, err = r.assignIf(ctx, leadID, set, stored)
	if err != nil || old == nil {
		return err
	}
	return fmt.Errorf("lead %s owned by %s: %w", leadID, old.AssignedTo(), network.ErrLeadAlreadyAssigned)
}

// assignIf runs a conditional owner write. A failed condition returns the
// lead as it was stored; a nil lead with a nil error means the write landed.
func (r *LeadRepository) assignIf(ctx context.Context, leadID string, set expression.UpdateBuilder, cond expression.ConditionBuilder) (*network.Lead, error) {
	expr, err := expression.NewBuilder().
		WithUpdate(set).
		WithCondition(expression.Name("PK").AttributeExists().And(cond)).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                           aws.String(r.tableName),
		Key:                                 leadKey(leadID),
		UpdateExpression:                    expr.Update(),
		ConditionExpression:                 expr.Condition(),
		ExpressionAttributeNames:            expr.Names(),
		ExpressionAttributeValues:           expr.Values(),
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err == nil {
		return nil, nil
	}

	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		if len(ccf.Item) == 0 {
			return nil, fmt.Errorf("lead %s: %w", leadID, network.ErrLeadNotFound)
		}
		var item leadItem
		if err := attributevalue.UnmarshalMap(ccf.Item, &item); err != nil {
			return nil, fmt.Errorf("failed to unmarshal lead: %w", err)
		}
		lead := item.toLead()
		return &lead, nil
	}
	r.logger.Error("Lead update failed", zap.String("operation", "AssignUnassignedLead"), zap.String("leadID", leadID), zap.Error(err))
	return nil, classify("AssignUnassignedLead", err)
}

// SetLeadVisibility stores the upline the lead is visible to
func (r *LeadRepository) SetLeadVisibility(ctx context.Context, leadID string, agentIDs []string) error {
	if len(agentIDs) == 0 {
		return r.update(ctx, "SetLeadVisibility", leadID, expression.Remove(expression.Name("VisibleTo")))
	}
	return r.update(ctx, "SetLeadVisibility", leadID,
		expression.Set(expression.Name("VisibleTo"), expression.Value(agentIDs)))
}

func (r *LeadRepository) update(ctx context.Context, operation, leadID string, update expression.UpdateBuilder) error {
	expr, err := expression.NewBuilder().
		WithUpdate(update).
		WithCondition(expression.Name("PK").AttributeExists()).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       leadKey(leadID),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		if isConditionalFailure(err) {
			return fmt.Errorf("lead %s: %w", leadID, network.ErrLeadNotFound)
		}
		r.logger.Error("Lead update failed", zap.String("operation", operation), zap.String("leadID", leadID), zap.Error(err))
		return classify(operation, err)
	}
	return nil
}

var _ ports.LeadRepository = (*LeadRepository)(nil)
