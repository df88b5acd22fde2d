package metrics

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"settleflow/logger"
)

// maxDatumsPerCall is the PutMetricData batch limit.
const maxDatumsPerCall = 1000

// PutMetricDataAPI is the part of the CloudWatch client the publisher uses.
type PutMetricDataAPI interface {
	PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatch publishes run metrics to a namespace.
type CloudWatch struct {
	client    PutMetricDataAPI
	namespace string
}

// NewCloudWatch loads the default AWS configuration for region (AWS_REGION
// when empty) and returns a publisher for namespace.
func NewCloudWatch(ctx context.Context, region, namespace string) (*CloudWatch, error) {
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	opts := []func(*config.LoadOptions) error{}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	logger.GetLogger().WithComponent("cloudwatch").WithFields(logger.Fields{
		"region":    cfg.Region,
		"namespace": namespace,
	}).Info("initialized CloudWatch client")

	return NewCloudWatchWithClient(cloudwatch.NewFromConfig(cfg), namespace), nil
}

// NewCloudWatchWithClient wraps an existing client.
func NewCloudWatchWithClient(client PutMetricDataAPI, namespace string) *CloudWatch {
	if namespace == "" {
		namespace = "Settleflow"
	}
	return &CloudWatch{client: client, namespace: namespace}
}

// Publish sends data in batches. A nil publisher is a no-op.
func (c *CloudWatch) Publish(ctx context.Context, data []cwtypes.MetricDatum) error {
	if c == nil || c.client == nil || len(data) == 0 {
		return nil
	}

	for start := 0; start < len(data); start += maxDatumsPerCall {
		end := min(start+maxDatumsPerCall, len(data))
		if _, err := c.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(c.namespace),
			MetricData: data[start:end],
		}); err != nil {
			return fmt.Errorf("put metric data: %w", err)
		}
	}
	return nil
}

func datum(name string, value float64, unit cwtypes.StandardUnit, dims map[string]string) cwtypes.MetricDatum {
	d := cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Unit:       unit,
		Value:      aws.Float64(value),
	}
	for k, v := range dims {
		if v == "" {
			continue
		}
		d.Dimensions = append(d.Dimensions, cwtypes.Dimension{Name: aws.String(k), Value: aws.String(v)})
	}
	return d
}
