package main

import (
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wudi/hitcounter/internal/gateway"
	"github.com/wudi/hitcounter/internal/logging"
)

func (a *app) lambdaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lambda",
		Short: "Run the counting proxy inside the AWS Lambda Go runtime",
		Long: "Registers the proxy as the function handler. The table and downstream are\n" +
			"usually taken from HITS_TABLE_NAME and DOWNSTREAM_FUNCTION_NAME.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.setup(cmd)
			if err != nil {
				return err
			}

			gw, err := gateway.New(cmd.Context(), cfg)
			if err != nil {
				logging.Error("Failed to create hit counter", zap.Error(err))
				return err
			}

			// Start blocks for the life of the execution environment.
			lambda.Start(gw.Proxy().LambdaHandler())
			return nil
		},
	}
}
