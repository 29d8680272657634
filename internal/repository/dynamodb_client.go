package repository

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
	"github.com/google/uuid"

	"bruno-bot/internal/domain"
)

const (
	pkPrefixConv   = "CONV#"
	pkPrefixASR    = "ASR#"
	pkLesson       = "LESSON"
	skMeta         = "META#"
	skPrefixOutput = "OUTPUT#"

	// DefaultChatIndex is the GSI keyed by chatKey (partition) and createdAt (sort).
	DefaultChatIndex = "chatKey-createdAt-index"
)

// dynamodbAPI is the minimal DynamoDB interface required by DynamoStore.
// Defined here for testability.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// DynamoStore keeps one item per conversation in a single table. The whole
// history lives in the "chat" attribute as JSON so an append is one
// UpdateItem call.
type DynamoStore struct {
	api       dynamodbAPI
	tableName string
	indexName string
	now       func() time.Time
}

// NewDynamoStore creates a DynamoStore. An empty indexName selects
// DefaultChatIndex.
func NewDynamoStore(api dynamodbAPI, tableName, indexName string) (*DynamoStore, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	if strings.TrimSpace(indexName) == "" {
		indexName = DefaultChatIndex
	}
	return &DynamoStore{api: api, tableName: tableName, indexName: indexName, now: time.Now}, nil
}

// convPK returns the DynamoDB partition key for a conversation.
func convPK(conversationID string) string {
	return pkPrefixConv + conversationID
}

func convKey(conversationID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: convPK(conversationID)},
		"SK": &types.AttributeValueMemberS{Value: skMeta},
	}
}

// FindActiveConversation queries the chat index newest first and returns the
// first conversation created inside the active window.
func (c *DynamoStore) FindActiveConversation(ctx context.Context, chatKey int64) (*domain.Conversation, error) {
	cutoff := c.now().Add(-domain.ActiveWindow)
	out, err := c.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		IndexName:              aws.String(c.indexName),
		KeyConditionExpression: aws.String("chatKey = :chat AND createdAt > :cutoff"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":chat":   &types.AttributeValueMemberN{Value: strconv.FormatInt(chatKey, 10)},
			":cutoff": &types.AttributeValueMemberS{Value: formatTime(cutoff)},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: FindActiveConversation query: %w", err)
	}
	if out == nil || len(out.Items) == 0 {
		return nil, ErrNotFound
	}
	conv, err := itemToConversation(out.Items[0])
	if err != nil {
		return nil, fmt.Errorf("repository: FindActiveConversation unmarshal: %w", err)
	}
	return conv, nil
}

// CreateConversation writes a new seeded conversation item.
func (c *DynamoStore) CreateConversation(ctx context.Context, in domain.NewConversation) (*domain.Conversation, error) {
	conv := &domain.Conversation{
		ID:        uuid.NewString(),
		UserKey:   in.UserKey,
		ChatKey:   in.ChatKey,
		Messages:  in.SeedMessages(),
		CreatedAt: c.now().UTC(),
		Topics:    in.Topics,
	}
	item, err := conversationItem(conv)
	if err != nil {
		return nil, err
	}
	_, err = c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: CreateConversation: %w", err)
	}
	return conv, nil
}

// AppendAndPersist replaces the stored history with conv's history plus msgs
// in a single UpdateItem and mirrors the result into conv on success.
func (c *DynamoStore) AppendAndPersist(ctx context.Context, conv *domain.Conversation, msgs ...domain.Message) error {
	if err := validateAppend(conv, msgs); err != nil {
		return err
	}
	updated := conv.WithMessages(msgs...)
	raw, err := encodeChat(updated)
	if err != nil {
		return err
	}
	_, err = c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(c.tableName),
		Key:                 convKey(conv.ID),
		UpdateExpression:    aws.String("SET chat = :chat"),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":chat": &types.AttributeValueMemberS{Value: string(raw)},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: AppendAndPersist: %w", err)
	}
	conv.Messages = updated
	return nil
}

// UpdateTokenUsage sets the cumulative token usage; zero is ignored.
func (c *DynamoStore) UpdateTokenUsage(ctx context.Context, conversationID string, tokens int) error {
	if tokens == 0 {
		return nil
	}
	_, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(c.tableName),
		Key:                 convKey(conversationID),
		UpdateExpression:    aws.String("SET tokenUsage = :tokens"),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":tokens": &types.AttributeValueMemberN{Value: strconv.Itoa(tokens)},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: UpdateTokenUsage: %w", err)
	}
	return nil
}

// LatestLesson reads the newest LESSON item (sort key is its creation time).
func (c *DynamoStore) LatestLesson(ctx context.Context) (domain.Lesson, error) {
	out, err := c.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: pkLesson},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return domain.Lesson{}, fmt.Errorf("repository: LatestLesson query: %w", err)
	}
	if out == nil || len(out.Items) == 0 {
		return domain.Lesson{}, ErrNotFound
	}
	item := out.Items[0]
	prompt, err := strAttr(item, "prompt")
	if err != nil {
		return domain.Lesson{}, fmt.Errorf("repository: LatestLesson unmarshal: %w", err)
	}
	starter, _ := strAttr(item, "starter") // allow empty
	topics, _ := strAttr(item, "topics")   // allow empty
	return domain.Lesson{Prompt: prompt, Starter: starter, Topics: topics}, nil
}

// RecordTranscription stores a speech-recognition output keyed by file name.
func (c *DynamoStore) RecordTranscription(ctx context.Context, fileName, output string) error {
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item: map[string]types.AttributeValue{
			"PK":     &types.AttributeValueMemberS{Value: pkPrefixASR + fileName},
			"SK":     &types.AttributeValueMemberS{Value: skPrefixOutput + formatTime(c.now())},
			"file":   &types.AttributeValueMemberS{Value: fileName},
			"output": &types.AttributeValueMemberS{Value: output},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: RecordTranscription: %w", err)
	}
	return nil
}

func conversationItem(conv *domain.Conversation) (map[string]types.AttributeValue, error) {
	raw, err := encodeChat(conv.Messages)
	if err != nil {
		return nil, err
	}
	return map[string]types.AttributeValue{
		"PK":         &types.AttributeValueMemberS{Value: convPK(conv.ID)},
		"SK":         &types.AttributeValueMemberS{Value: skMeta},
		"id":         &types.AttributeValueMemberS{Value: conv.ID},
		"userKey":    &types.AttributeValueMemberS{Value: conv.UserKey},
		"chatKey":    &types.AttributeValueMemberN{Value: strconv.FormatInt(conv.ChatKey, 10)},
		"createdAt":  &types.AttributeValueMemberS{Value: formatTime(conv.CreatedAt)},
		"tokenUsage": &types.AttributeValueMemberN{Value: strconv.Itoa(conv.TokenUsage)},
		"topics":     &types.AttributeValueMemberS{Value: conv.Topics},
		"chat":       &types.AttributeValueMemberS{Value: string(raw)},
	}, nil
}

// itemToConversation converts a DynamoDB attribute map to a Conversation.
func itemToConversation(item map[string]types.AttributeValue) (*domain.Conversation, error) {
	id, err := strAttr(item, "id")
	if err != nil {
		return nil, err
	}
	chatKey, err := int64Attr(item, "chatKey")
	if err != nil {
		return nil, err
	}
	created, err := strAttr(item, "createdAt")
	if err != nil {
		return nil, err
	}
	createdAt, err := parseTime(created)
	if err != nil {
		return nil, fmt.Errorf("repository: parse createdAt: %w", err)
	}
	chat, err := strAttr(item, "chat")
	if err != nil {
		return nil, err
	}
	msgs, err := decodeChat([]byte(chat))
	if err != nil {
		return nil, err
	}
	userKey, _ := strAttr(item, "userKey") // allow empty
	topics, _ := strAttr(item, "topics")   // allow empty
	tokens, err := int64Attr(item, "tokenUsage")
	if err != nil {
		tokens = 0
	}
	return &domain.Conversation{
		ID:         id,
		UserKey:    userKey,
		ChatKey:    chatKey,
		Messages:   msgs,
		TokenUsage: int(tokens),
		CreatedAt:  createdAt,
		Topics:     topics,
	}, nil
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

func int64Attr(item map[string]types.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
