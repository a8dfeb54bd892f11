package dynamo

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/Youssefbenarbiya/booki-relay/internal/store"
)

// NewDynamoStores builds the dynamodb-mode stores from the default AWS
// credential chain. DynamoDB holds no listing data, so the returned Listings
// is nil and callers must configure the HTTP listing source.
func NewDynamoStores(ctx context.Context, cfg store.StoreConfig) (*store.Stores, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	c, err := New(awsdynamodb.NewFromConfig(awsCfg), cfg.DynamoTable)
	if err != nil {
		return nil, err
	}
	return store.NewStores(c, nil, c, nil), nil
}
