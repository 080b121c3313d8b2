package kv

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoStore backs Store with a single DynamoDB table, matching the data
// model verbatim: partition key "pk", sort key "sk", and one local
// secondary index "LSI1" on attribute "lsi1" for reverse-chronological
// listing. This is the production backing store the (PK, SK) + LSI1
// shape in the data model is designed around.
type DynamoStore struct {
	client *dynamodb.Client
	table  string
}

// DynamoConfig configures the DynamoDB-backed store.
type DynamoConfig struct {
	// Table is the DynamoDB table name (TABLE_NAME env var).
	Table string

	// Region overrides the default region resolved from the environment.
	Region string
}

// NewDynamoStore loads AWS credentials via the default chain (matching
// providers/bedrock.go's NewBedrockProvider) and returns a store bound to
// the configured table.
func NewDynamoStore(ctx context.Context, cfg DynamoConfig) (*DynamoStore, error) {
	if cfg.Table == "" {
		return nil, fmt.Errorf("kv: table name is required")
	}
	var optFns []func(*config.LoadOptions) error
	if cfg.Region != "" {
		optFns = append(optFns, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("kv: load aws config: %w", err)
	}
	return &DynamoStore{client: dynamodb.NewFromConfig(awsCfg), table: cfg.Table}, nil
}

func itemKey(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: pk},
		"sk": &types.AttributeValueMemberS{Value: sk},
	}
}

func toDynamoItem(it *Item) (map[string]types.AttributeValue, error) {
	av, err := attributevalue.MarshalMap(it.Attrs)
	if err != nil {
		return nil, fmt.Errorf("kv: marshal attrs: %w", err)
	}
	av["pk"] = &types.AttributeValueMemberS{Value: it.PK}
	av["sk"] = &types.AttributeValueMemberS{Value: it.SK}
	if it.LSI1 != "" {
		av["lsi1"] = &types.AttributeValueMemberS{Value: it.LSI1}
	}
	return av, nil
}

func fromDynamoItem(av map[string]types.AttributeValue) (*Item, error) {
	it := &Item{Attrs: map[string]any{}}
	if err := attributevalue.UnmarshalMap(av, &it.Attrs); err != nil {
		return nil, fmt.Errorf("kv: unmarshal attrs: %w", err)
	}
	if pk, ok := it.Attrs["pk"].(string); ok {
		it.PK = pk
	}
	if sk, ok := it.Attrs["sk"].(string); ok {
		it.SK = sk
	}
	if lsi1, ok := it.Attrs["lsi1"].(string); ok {
		it.LSI1 = lsi1
	}
	delete(it.Attrs, "pk")
	delete(it.Attrs, "sk")
	delete(it.Attrs, "lsi1")
	return it, nil
}

func (s *DynamoStore) Get(ctx context.Context, pk, sk string) (*Item, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       itemKey(pk, sk),
	})
	if err != nil {
		return nil, fmt.Errorf("kv: get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, &NotFoundError{PK: pk, SK: sk}
	}
	return fromDynamoItem(out.Item)
}

func (s *DynamoStore) Put(ctx context.Context, item *Item) error {
	av, err := toDynamoItem(item)
	if err != nil {
		return err
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String(s.table), Item: av})
	if err != nil {
		return fmt.Errorf("kv: put item: %w", err)
	}
	return nil
}

func (s *DynamoStore) Update(ctx context.Context, pk, sk string, partial map[string]any) error {
	if len(partial) == 0 {
		return nil
	}
	expr, names, values := buildSetExpression(partial)
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       itemKey(pk, sk),
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		return fmt.Errorf("kv: update item: %w", err)
	}
	return nil
}

func buildSetExpression(partial map[string]any) (string, map[string]string, map[string]types.AttributeValue) {
	expr := "SET"
	names := map[string]string{}
	values := map[string]types.AttributeValue{}
	i := 0
	for field, v := range partial {
		nameKey := fmt.Sprintf("#f%d", i)
		valueKey := fmt.Sprintf(":v%d", i)
		if i > 0 {
			expr += ","
		}
		expr += fmt.Sprintf(" %s = %s", nameKey, valueKey)
		names[nameKey] = field
		av, err := attributevalue.Marshal(v)
		if err == nil {
			values[valueKey] = av
		}
		i++
	}
	return expr, names, values
}

func (s *DynamoStore) Add(ctx context.Context, pk, sk, attr string, delta float64) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.table),
		Key:               itemKey(pk, sk),
		UpdateExpression:  aws.String("ADD #a :d"),
		ExpressionAttributeNames: map[string]string{"#a": attr},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":d": &types.AttributeValueMemberN{Value: strconv.FormatFloat(delta, 'f', -1, 64)},
		},
	})
	if err != nil {
		return fmt.Errorf("kv: add item: %w", err)
	}
	return nil
}

func (s *DynamoStore) TransactWrite(ctx context.Context, items []*Item) error {
	puts := make([]types.TransactWriteItem, 0, len(items))
	for _, it := range items {
		av, err := toDynamoItem(it)
		if err != nil {
			return err
		}
		puts = append(puts, types.TransactWriteItem{
			Put: &types.Put{TableName: aws.String(s.table), Item: av},
		})
	}
	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: puts})
	if err != nil {
		return fmt.Errorf("kv: transact write: %w", err)
	}
	return nil
}

func (s *DynamoStore) Query(ctx context.Context, pk string, opts QueryOptions) ([]*Item, error) {
	sortAttr := "sk"
	if opts.Index == "LSI1" {
		sortAttr = "lsi1"
	}

	keyCond := "pk = :pk"
	exprValues := map[string]types.AttributeValue{
		":pk": &types.AttributeValueMemberS{Value: pk},
	}
	if opts.After != "" {
		cmp := ">"
		if opts.Reverse {
			cmp = "<"
		}
		keyCond += fmt.Sprintf(" AND %s %s :after", sortAttr, cmp)
		exprValues[":after"] = &types.AttributeValueMemberS{Value: opts.After}
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.table),
		KeyConditionExpression:    aws.String(keyCond),
		ExpressionAttributeValues: exprValues,
		ScanIndexForward:          aws.Bool(!opts.Reverse),
	}
	if opts.Index != "" {
		input.IndexName = aws.String(opts.Index)
	}
	if opts.Limit > 0 {
		input.Limit = aws.Int32(int32(opts.Limit))
	}

	var out []*Item
	paginator := dynamodb.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("kv: query: %w", err)
		}
		for _, av := range page.Items {
			it, err := fromDynamoItem(av)
			if err != nil {
				return nil, err
			}
			out = append(out, it)
		}
		if opts.Limit > 0 && len(out) >= opts.Limit {
			out = out[:opts.Limit]
			break
		}
	}
	return out, nil
}
