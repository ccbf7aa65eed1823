package logger

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

const metricNamespace = "Fundingflow"

var (
	cwMu     sync.Mutex
	cwClient *cloudwatch.Client
)

// InitCloudWatch creates the CloudWatch client used for metric publishing.
// Metrics are dropped silently until this has been called.
func InitCloudWatch(ctx context.Context, region string) error {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return err
	}
	cwMu.Lock()
	cwClient = cloudwatch.NewFromConfig(cfg)
	cwMu.Unlock()
	return nil
}

func publishMetrics(ctx context.Context, data []cwtypes.MetricDatum) {
	cwMu.Lock()
	client := cwClient
	cwMu.Unlock()
	if client == nil || len(data) == 0 {
		return
	}
	_, err := client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(metricNamespace),
		MetricData: data,
	})
	if err != nil {
		// Metric delivery is best effort, never fail the caller.
		globalLogger.Logger.WithError(err).Debug("cloudwatch put metric data failed")
	}
}
