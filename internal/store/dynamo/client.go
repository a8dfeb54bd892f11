// Package dynamo implements the message and conversation stores on a single
// DynamoDB table keyed by conversation.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/Youssefbenarbiya/booki-relay/internal/chat"
	"github.com/Youssefbenarbiya/booki-relay/internal/store"
)

const (
	skPrefixMsg   = "MSG#"
	skPrefixClose = "CLOSE#"
)

// dynamodbAPI is the subset of *dynamodb.Client the stores use.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Client wraps the chat table. It implements store.MessageStore and
// store.ConversationStore.
type Client struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

// New creates a Client for tableName.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("dynamo: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("dynamo: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName, now: time.Now}, nil
}

func convPK(key chat.ConversationKey) string {
	return "CONV#" + key.String()
}

// msgSK sorts lexically in (createdAt, id) order: RFC3339Nano with a fixed
// nine-digit fraction, then the id.
func msgSK(ts time.Time, id string) string {
	return skPrefixMsg + ts.UTC().Format("2006-01-02T15:04:05.000000000Z") + "#" + id
}

func (c *Client) SaveMessage(ctx context.Context, msg *chat.Message) error {
	msg.ID = store.GenNewID().String()
	msg.CreatedAt = c.now().UTC()
	msg.IsRead = false

	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                messageItem(msg),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("dynamo: save message: %w", err)
	}
	return nil
}

func (c *Client) ListMessages(ctx context.Context, key chat.ConversationKey) ([]chat.Message, error) {
	msgs := []chat.Message{}
	var startKey map[string]types.AttributeValue
	for {
		out, err := c.api.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(c.tableName),
			KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk":     &types.AttributeValueMemberS{Value: convPK(key)},
				":prefix": &types.AttributeValueMemberS{Value: skPrefixMsg},
			},
			ScanIndexForward:  aws.Bool(true),
			ConsistentRead:    aws.Bool(true),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("dynamo: list messages: %w", err)
		}
		for _, item := range out.Items {
			m, err := itemToMessage(item)
			if err != nil {
				return nil, fmt.Errorf("dynamo: list messages: %w", err)
			}
			m.Key = key
			msgs = append(msgs, m)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	store.SortChronological(msgs)
	return msgs, nil
}

// ListMessagesBetween filters client side; a conversation partition is small
// enough that a filter expression buys nothing over it.
func (c *Client) ListMessagesBetween(ctx context.Context, key chat.ConversationKey, a, b string) ([]chat.Message, error) {
	msgs, err := c.ListMessages(ctx, key)
	if err != nil {
		return nil, err
	}
	return store.FilterBetween(msgs, a, b), nil
}

func (c *Client) CloseConversation(ctx context.Context, cl store.ConversationClosure) error {
	if cl.ClosedAt.IsZero() {
		cl.ClosedAt = c.now().UTC()
	}
	id := store.GenNewID().String()
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item: map[string]types.AttributeValue{
			"PK":         &types.AttributeValueMemberS{Value: convPK(cl.Key)},
			"SK":         &types.AttributeValueMemberS{Value: skPrefixClose + cl.ClosedAt.UTC().Format(time.RFC3339Nano) + "#" + id},
			"agencyId":   &types.AttributeValueMemberS{Value: cl.AgencyID},
			"customerId": &types.AttributeValueMemberS{Value: cl.CustomerID},
			"closedAt":   &types.AttributeValueMemberN{Value: strconv.FormatInt(cl.ClosedAt.UnixNano(), 10)},
		},
	})
	if err != nil {
		return fmt.Errorf("dynamo: close conversation: %w", err)
	}
	return nil
}

func messageItem(msg *chat.Message) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":            &types.AttributeValueMemberS{Value: convPK(msg.Key)},
		"SK":            &types.AttributeValueMemberS{Value: msgSK(msg.CreatedAt, msg.ID)},
		"id":            &types.AttributeValueMemberS{Value: msg.ID},
		"senderId":      &types.AttributeValueMemberS{Value: msg.SenderID},
		"receiverId":    &types.AttributeValueMemberS{Value: msg.ReceiverID},
		"content":       &types.AttributeValueMemberS{Value: msg.Content},
		"createdAt":     &types.AttributeValueMemberN{Value: strconv.FormatInt(msg.CreatedAt.UnixNano(), 10)},
		"isRead":        &types.AttributeValueMemberBOOL{Value: msg.IsRead},
		"correlationId": &types.AttributeValueMemberS{Value: msg.CorrelationID},
	}
}

func itemToMessage(item map[string]types.AttributeValue) (chat.Message, error) {
	var m chat.Message
	var err error
	if m.ID, err = strAttr(item, "id"); err != nil {
		return m, err
	}
	if m.SenderID, err = strAttr(item, "senderId"); err != nil {
		return m, err
	}
	if m.ReceiverID, err = strAttr(item, "receiverId"); err != nil {
		return m, err
	}
	if m.Content, err = strAttr(item, "content"); err != nil {
		return m, err
	}
	nanos, err := int64Attr(item, "createdAt")
	if err != nil {
		return m, err
	}
	m.CreatedAt = time.Unix(0, nanos).UTC()
	m.CorrelationID, _ = strAttr(item, "correlationId") // optional
	if b, ok := item["isRead"].(*types.AttributeValueMemberBOOL); ok {
		m.IsRead = b.Value
	}
	return m, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("attribute %q is not a string", key)
	}
	return s.Value, nil
}

func int64Attr(item map[string]types.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("attribute %q is not a number", key)
	}
	parsed, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
