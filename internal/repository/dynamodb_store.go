package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"tech-advisor/internal/domain"
)

const (
	pkPrefixSession = "SESSION#"
	skState         = "STATE#"
	defaultIdleTTL  = 24 * time.Hour
)

// dynamodbAPI is the minimal DynamoDB interface required by DynamoStore.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DynamoStore keeps one item per session so stateless front ends can resume a
// session. Items carry a TTL attribute equal to the idle lifetime; the API key
// is never written.
type DynamoStore struct {
	api       dynamodbAPI
	tableName string
	idle      time.Duration
	now       func() time.Time
}

// NewDynamoStore creates a DynamoDB-backed SessionStore.
func NewDynamoStore(api dynamodbAPI, tableName string, idle time.Duration) (*DynamoStore, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	if idle <= 0 {
		idle = defaultIdleTTL
	}
	return &DynamoStore{api: api, tableName: tableName, idle: idle, now: time.Now}, nil
}

// sessionPK returns the DynamoDB partition key for a session.
func sessionPK(id string) string {
	return pkPrefixSession + id
}

func (d *DynamoStore) key(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: sessionPK(id)},
		"SK": &types.AttributeValueMemberS{Value: skState},
	}
}

// Load reads a session. Items past their TTL are reported as not found even
// before DynamoDB removes them.
func (d *DynamoStore) Load(ctx context.Context, id string) (*domain.Session, error) {
	out, err := d.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.tableName),
		Key:            d.key(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: Load get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, ErrNotFound
	}

	ttl, err := intAttr(out.Item, "ttl")
	if err != nil {
		return nil, fmt.Errorf("repository: Load decode ttl: %w", err)
	}
	if int64(ttl) <= d.now().Unix() {
		return nil, ErrNotFound
	}

	s, err := itemToSession(id, out.Item)
	if err != nil {
		return nil, fmt.Errorf("repository: Load unmarshal: %w", err)
	}
	return s, nil
}

// Save writes the full session state, replacing any previous item.
func (d *DynamoStore) Save(ctx context.Context, s *domain.Session) error {
	if s == nil || strings.TrimSpace(s.ID) == "" {
		return errors.New("repository: Save: session ID is required")
	}
	if s.Transcript == nil {
		return errors.New("repository: Save: transcript is required")
	}
	now := d.now().UTC()
	s.UpdatedAt = now

	item, err := d.sessionItem(s, now)
	if err != nil {
		return fmt.Errorf("repository: Save: %w", err)
	}
	_, err = d.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("repository: Save: %w", err)
	}
	return nil
}

func (d *DynamoStore) Delete(ctx context.Context, id string) error {
	_, err := d.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.tableName),
		Key:       d.key(id),
	})
	if err != nil {
		return fmt.Errorf("repository: Delete: %w", err)
	}
	return nil
}

func (d *DynamoStore) sessionItem(s *domain.Session, now time.Time) (map[string]types.AttributeValue, error) {
	turns, err := json.Marshal(s.Transcript.Turns())
	if err != nil {
		return nil, fmt.Errorf("encode turns: %w", err)
	}
	notices, err := json.Marshal(s.Notices)
	if err != nil {
		return nil, fmt.Errorf("encode notices: %w", err)
	}
	return map[string]types.AttributeValue{
		"PK":          &types.AttributeValueMemberS{Value: sessionPK(s.ID)},
		"SK":          &types.AttributeValueMemberS{Value: skState},
		"sessionId":   &types.AttributeValueMemberS{Value: s.ID},
		"turns":       &types.AttributeValueMemberS{Value: string(turns)},
		"notices":     &types.AttributeValueMemberS{Value: string(notices)},
		"lastSaveDir": &types.AttributeValueMemberS{Value: s.LastSaveDir},
		"draft":       &types.AttributeValueMemberS{Value: s.Draft},
		"updatedAt":   &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		"ttl":         &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", now.Add(d.idle).Unix())},
	}, nil
}

// itemToSession converts a DynamoDB attribute map to a Session.
func itemToSession(id string, item map[string]types.AttributeValue) (*domain.Session, error) {
	rawTurns, err := strAttr(item, "turns")
	if err != nil {
		return nil, err
	}
	var turns []domain.Turn
	if err := json.Unmarshal([]byte(rawTurns), &turns); err != nil {
		return nil, fmt.Errorf("repository: decode turns: %w", err)
	}
	transcript, err := domain.RestoreTranscript(turns)
	if err != nil {
		return nil, err
	}

	s := &domain.Session{ID: id, Transcript: transcript}
	s.LastSaveDir, _ = strAttr(item, "lastSaveDir") // allow empty
	s.Draft, _ = strAttr(item, "draft")             // allow empty
	if raw, err := strAttr(item, "notices"); err == nil && raw != "" {
		if err := json.Unmarshal([]byte(raw), &s.Notices); err != nil {
			return nil, fmt.Errorf("repository: decode notices: %w", err)
		}
	}
	if raw, err := strAttr(item, "updatedAt"); err == nil {
		s.UpdatedAt, _ = time.Parse(time.RFC3339, raw)
	}
	return s, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
