package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"referralnet-backend/application/ports"
	"referralnet-backend/domain/network"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// AgentRepository implements ports.AgentRepository using DynamoDB
type AgentRepository struct {
	client    API
	tableName string
	batchSize int
	logger    *zap.Logger
}

// NewAgentRepository creates a new AgentRepository. batchSize caps the
// number of agents cleared per transaction.
func NewAgentRepository(client API, tables Tables, batchSize int, logger *zap.Logger) *AgentRepository {
	if batchSize <= 0 || batchSize > maxTransactItems {
		batchSize = maxTransactItems
	}
	return &AgentRepository{
		client:    client,
		tableName: tables.Agents,
		batchSize: batchSize,
		logger:    logger,
	}
}

// ListAgents scans the agents table, oldest agent first
func (r *AgentRepository) ListAgents(ctx context.Context) ([]network.AgentRecord, error) {
	filter := expression.Name("EntityType").Equal(expression.Value("AGENT"))
	expr, err := expression.NewBuilder().WithFilter(filter).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	input := &dynamodb.ScanInput{
		TableName:                 aws.String(r.tableName),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}

	var agents []network.AgentRecord
	paginator := dynamodb.NewScanPaginator(r.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classify("ListAgents", err)
		}
		var items []agentItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal agents: %w", err)
		}
		for _, item := range items {
			agents = append(agents, item.toRecord())
		}
	}

	sort.SliceStable(agents, func(i, j int) bool {
		if !agents[i].CreatedAt.Equal(agents[j].CreatedAt) {
			return agents[i].CreatedAt.Before(agents[j].CreatedAt)
		}
		return agents[i].ID < agents[j].ID
	})
	return agents, nil
}

// GetAgent reads one agent with a strongly consistent read
func (r *AgentRepository) GetAgent(ctx context.Context, id string) (*network.AgentRecord, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            agentKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, classify("GetAgent", err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("agent %s: %w", id, network.ErrAgentNotFound)
	}

	var item agentItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal agent: %w", err)
	}
	record := item.toRecord()
	return &record, nil
}

// UpdateParent sets or removes one agent's parent
func (r *AgentRepository) UpdateParent(ctx context.Context, agentID string, parentID *string) error {
	var update expression.UpdateBuilder
	if parentID == nil {
		update = expression.Remove(expression.Name("ParentID"))
	} else {
		update = expression.Set(expression.Name("ParentID"), expression.Value(*parentID))
	}

	expr, err := expression.NewBuilder().
		WithUpdate(update).
		WithCondition(expression.Name("PK").AttributeExists()).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       agentKey(agentID),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		if isConditionalFailure(err) {
			return fmt.Errorf("agent %s: %w", agentID, network.ErrAgentNotFound)
		}
		return classify("UpdateParent", err)
	}
	return nil
}

// clearParentExpression removes ParentID only where one is set, so
// clearing an already-null parent fails the condition instead of writing
func clearParentExpression() (expression.Expression, error) {
	return expression.NewBuilder().
		WithUpdate(expression.Remove(expression.Name("ParentID"))).
		WithCondition(expression.Name("PK").AttributeExists().And(expression.Name("ParentID").AttributeExists())).
		Build()
}

// ClearParents removes the parent of each listed agent. Each chunk is first
// tried as one transaction; if that is cancelled the chunk is retried item
// by item so one bad record does not block the rest.
func (r *AgentRepository) ClearParents(ctx context.Context, agentIDs []string) (ports.BatchResult, error) {
	expr, err := clearParentExpression()
	if err != nil {
		return ports.BatchResult{}, fmt.Errorf("failed to build expression: %w", err)
	}

	result := ports.BatchResult{Requested: len(agentIDs)}
	for start := 0; start < len(agentIDs); start += r.batchSize {
		end := start + r.batchSize
		if end > len(agentIDs) {
			end = len(agentIDs)
		}
		chunk := agentIDs[start:end]

		if err := ctx.Err(); err != nil {
			for _, id := range agentIDs[start:] {
				result.Failures = append(result.Failures, ports.BatchFailure{ID: id, Reason: err.Error()})
			}
			return result, nil
		}

		if r.clearTransactionally(ctx, chunk, expr) {
			result.Changed += len(chunk)
			continue
		}
		for _, id := range chunk {
			changed, err := r.clearOne(ctx, id, expr)
			if err != nil {
				result.Failures = append(result.Failures, ports.BatchFailure{ID: id, Reason: err.Error()})
				continue
			}
			if changed {
				result.Changed++
			}
		}
	}
	return result, nil
}

func (r *AgentRepository) clearTransactionally(ctx context.Context, ids []string, expr expression.Expression) bool {
	items := make([]types.TransactWriteItem, 0, len(ids))
	for _, id := range ids {
		items = append(items, types.TransactWriteItem{
			Update: &types.Update{
				TableName:                 aws.String(r.tableName),
				Key:                       agentKey(id),
				UpdateExpression:          expr.Update(),
				ConditionExpression:       expr.Condition(),
				ExpressionAttributeNames:  expr.Names(),
				ExpressionAttributeValues: expr.Values(),
			},
		})
	}

	_, err := r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err == nil {
		return true
	}
	if isTransactionCanceled(err) {
		r.logger.Debug("Parent clear transaction cancelled, retrying per item", zap.Int("items", len(ids)))
	} else {
		r.logger.Warn("Parent clear transaction failed, retrying per item", zap.Int("items", len(ids)), zap.Error(err))
	}
	return false
}

// clearOne reports whether a parent was actually removed. A failed
// condition on an existing agent means there was nothing to clear.
func (r *AgentRepository) clearOne(ctx context.Context, id string, expr expression.Expression) (bool, error) {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                           aws.String(r.tableName),
		Key:                                 agentKey(id),
		UpdateExpression:                    expr.Update(),
		ConditionExpression:                 expr.Condition(),
		ExpressionAttributeNames:            expr.Names(),
		ExpressionAttributeValues:           expr.Values(),
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err == nil {
		return true, nil
	}

	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		if len(ccf.Item) == 0 {
			return false, network.ErrAgentNotFound
		}
		return false, nil
	}
	return false, classify("ClearParents", err)
}

// NormalizeEmptyParents removes blank parent ids. The write is conditioned on
// the blank value still being there.
func (r *AgentRepository) NormalizeEmptyParents(ctx context.Context) (ports.BatchResult, error) {
	agents, err := r.ListAgents(ctx)
	if err != nil {
		return ports.BatchResult{}, err
	}

	var result ports.BatchResult
	for _, a := range agents {
		if !a.HasBlankParent() {
			continue
		}
		result.Requested++

		expr, err := expression.NewBuilder().
			WithUpdate(expression.Remove(expression.Name("ParentID"))).
			WithCondition(expression.Name("ParentID").Equal(expression.Value(*a.ParentID))).
			Build()
		if err != nil {
			return result, fmt.Errorf("failed to build expression: %w", err)
		}

		_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                 aws.String(r.tableName),
			Key:                       agentKey(a.ID),
			UpdateExpression:          expr.Update(),
			ConditionExpression:       expr.Condition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		})
		switch {
		case err == nil:
			result.Changed++
		case isConditionalFailure(err):
			// changed concurrently; nothing left to normalize
		default:
			result.Failures = append(result.Failures, ports.BatchFailure{ID: a.ID, Reason: classify("NormalizeEmptyParents", err).Error()})
		}
	}
	return result, nil
}

var _ ports.AgentRepository = (*AgentRepository)(nil)
