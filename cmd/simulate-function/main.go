package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/ykori/colorvisionflow/internal/services"
)

var (
	simulatorInstance *services.SimulatorFunction
	once              sync.Once
	initErr           error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Register the CloudEvent function. The framework routes GCS
	// finalize events here.
	functions.CloudEvent("SimulateBatch", simulateBatch)
}

// main is required by the Go Functions Framework.
func main() {}

// simulateBatch is the Cloud Function entry point.
func simulateBatch(ctx context.Context, e cloudevents.Event) error {
	// One-time initialization of clients, shared across invocations.
	once.Do(func() {
		simulatorInstance, initErr = services.NewSimulator(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent services.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	// Errors are logged with context inside Process; returning one
	// marks the invocation as failed so the event is retried.
	return simulatorInstance.Process(ctx, gcsEvent)
}
