package eventbridge

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"referralnet-backend/domain/events"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockEventBridge struct {
	mock.Mock
}

func (m *MockEventBridge) PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*eventbridge.PutEventsOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func reparented(n int) []events.DomainEvent {
	out := make([]events.DomainEvent, 0, n)
	parent := "root"
	for i := 0; i < n; i++ {
		out = append(out, events.NewAgentReparented("a", nil, &parent, "admin", time.Unix(1700000000, 0)))
	}
	return out
}

func TestPublisher_Publish(t *testing.T) {
	client := new(MockEventBridge)
	var captured *eventbridge.PutEventsInput
	client.On("PutEvents", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).(*eventbridge.PutEventsInput) }).
		Return(&eventbridge.PutEventsOutput{}, nil).Once()
	publisher := NewPublisher(client, "bus", "referralnet.network", zap.NewNop())

	err := publisher.Publish(context.Background(), reparented(1)[0])

	require.NoError(t, err)
	require.Len(t, captured.Entries, 1)
	entry := captured.Entries[0]
	assert.Equal(t, "bus", aws.ToString(entry.EventBusName))
	assert.Equal(t, "referralnet.network", aws.ToString(entry.Source))
	assert.Equal(t, events.TypeAgentReparented, aws.ToString(entry.DetailType))

	var detail map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(entry.Detail)), &detail))
	assert.Equal(t, "root", detail["new_parent_id"])
	client.AssertExpectations(t)
}

func TestPublisher_PublishBatchChunksByTen(t *testing.T) {
	client := new(MockEventBridge)
	var sizes []int
	client.On("PutEvents", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			sizes = append(sizes, len(args.Get(1).(*eventbridge.PutEventsInput).Entries))
		}).
		Return(&eventbridge.PutEventsOutput{}, nil)
	publisher := NewPublisher(client, "bus", "src", zap.NewNop())

	require.NoError(t, publisher.PublishBatch(context.Background(), reparented(23)))

	assert.Equal(t, []int{10, 10, 3}, sizes)
}

func TestPublisher_FailedEntries(t *testing.T) {
	client := new(MockEventBridge)
	client.On("PutEvents", mock.Anything, mock.Anything).Return(&eventbridge.PutEventsOutput{
		FailedEntryCount: 1,
		Entries: []types.PutEventsResultEntry{
			{EventId: aws.String("ok")},
			{ErrorCode: aws.String("InternalFailure"), ErrorMessage: aws.String("try again")},
		},
	}, nil).Once()
	publisher := NewPublisher(client, "bus", "src", zap.NewNop())

	err := publisher.PublishBatch(context.Background(), reparented(2))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 events failed")
}

func TestPublisher_ClientError(t *testing.T) {
	client := new(MockEventBridge)
	client.On("PutEvents", mock.Anything, mock.Anything).Return(nil, errors.New("throttled")).Once()
	publisher := NewPublisher(client, "bus", "src", zap.NewNop())

	err := publisher.PublishBatch(context.Background(), reparented(15))

	require.Error(t, err)
	client.AssertNumberOfCalls(t, "PutEvents", 1)
}

func TestPublisher_EmptyBatch(t *testing.T) {
	client := new(MockEventBridge)
	publisher := NewPublisher(client, "bus", "src", zap.NewNop())

	require.NoError(t, publisher.PublishBatch(context.Background(), nil))
	client.AssertNotCalled(t, "PutEvents", mock.Anything, mock.Anything)
}
