package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
	"golang.org/x/sync/errgroup"

	"github.com/ykori/colorvisionflow/internal/gcp"
	"github.com/ykori/colorvisionflow/internal/governor"
	"github.com/ykori/colorvisionflow/internal/models"
	"github.com/ykori/colorvisionflow/internal/pipeline"
	"github.com/ykori/colorvisionflow/internal/render"
)

// triggerSuffix marks the object whose upload starts a batch. Clients
// upload their PDFs under a batch prefix and finish with this marker.
const triggerSuffix = ".ready"

type SimulatorConfig struct {
	ProjectID        string
	OutputBucket     string
	CollectionName   string
	WorkflowID       string
	WorkflowLocation string
	RequestedScale   float64
}

// SimulatorFunction holds the dependencies of the batch simulation
// Cloud Function.
type SimulatorFunction struct {
	storageClient    *storage.Client
	firestoreClient  *firestore.Client
	executionsClient *executions.Client
	limits           governor.Limits
	config           SimulatorConfig
}

// GCSEvent defines the structure for the GCS event data.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

func loadConfig() (*SimulatorConfig, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	outputBucket := gcp.GetEnv("OUTPUT_BUCKET", "")
	if outputBucket == "" {
		return nil, fmt.Errorf("OUTPUT_BUCKET environment variable must be set")
	}

	scale := 1.0
	if raw := gcp.GetEnv("RENDER_SCALE", ""); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("RENDER_SCALE must be a number, got %q", raw)
		}
		scale = parsed
	}

	return &SimulatorConfig{
		ProjectID:        projectID,
		OutputBucket:     outputBucket,
		CollectionName:   gcp.GetEnv("FIRESTORE_COLLECTION", "simulationJobs"),
		WorkflowID:       gcp.GetEnv("WORKFLOW_ID", ""),
		WorkflowLocation: gcp.GetEnv("WORKFLOW_LOCATION", "us-central1"),
		RequestedScale:   scale,
	}, nil
}

// NewSimulator creates a SimulatorFunction with all clients wired.
func NewSimulator(ctx context.Context) (*SimulatorFunction, error) {
	config, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		return nil, err
	}
	storageClient, err := gcp.NewStorageClient(ctx)
	if err != nil {
		return nil, err
	}
	executionsClient, err := gcp.NewExecutionsClient(ctx)
	if err != nil {
		return nil, err
	}

	f := &SimulatorFunction{
		storageClient:    storageClient,
		firestoreClient:  firestoreClient,
		executionsClient: executionsClient,
		limits:           governor.DefaultLimits(),
		config:           *config,
	}
	slog.Info("Simulator logic initialized.", "outputBucket", config.OutputBucket, "scale", config.RequestedScale)
	return f, nil
}

// Process handles one GCS event. Uploads other than the batch trigger
// marker are ignored; the marker's prefix identifies the batch.
func (f *SimulatorFunction) Process(ctx context.Context, e GCSEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)

	if !strings.HasSuffix(e.Name, triggerSuffix) {
		logCtx.Debug("Not a batch trigger object. Ignoring.")
		return nil
	}
	prefix := path.Dir(e.Name)
	jobID := path.Base(prefix)
	if jobID == "." || jobID == "/" {
		logCtx.Warn("Trigger object has no batch prefix. Ignoring.")
		return nil
	}
	logCtx = logCtx.With("jobId", jobID)
	logCtx.Info("Processing new simulation batch.")

	inputs, err := f.downloadBatch(ctx, e.Bucket, prefix+"/")
	if err != nil {
		logCtx.Error("Failed to download batch", "error", err)
		return err
	}

	docRef, err := f.createJob(ctx, jobID, prefix, len(inputs))
	if err != nil {
		logCtx.Error("Failed to create job record", "error", err)
		return err
	}
	logCtx.Info("Created job record in Firestore.", "documentCount", len(inputs))

	reporter := newJobReporter(ctx, docRef, logCtx)
	pl := pipeline.New(render.NewFitzRenderer(), f.limits, reporter)

	result, err := pl.Run(ctx, inputs, f.config.RequestedScale)
	if errors.Is(err, pipeline.ErrBatchEmpty) {
		reporter.flush()
		if uerr := f.updateStatus(ctx, docRef, models.JobStatusEmpty, ""); uerr != nil {
			logCtx.Error("Failed to mark job empty", "error", uerr)
		}
		logCtx.Warn("Batch contained no processable pages. No archive produced.")
		return nil // Clean exit: nothing to retry.
	}
	if err != nil {
		return f.handleError(ctx, logCtx, docRef, "batch processing failed", err)
	}
	reporter.flush()

	archiveObject := fmt.Sprintf("processed/%s.zip", jobID)
	bucket := f.storageClient.Bucket(f.config.OutputBucket)
	if err := gcp.SaveBytesAtomically(ctx, bucket, archiveObject, result.Archive); err != nil {
		return f.handleError(ctx, logCtx, docRef, "failed to upload archive", err)
	}
	logCtx.Info("Archive uploaded.", "object", archiveObject, "entries", result.Entries)

	updates := []firestore.Update{
		{Path: "status", Value: models.JobStatusCompleted},
		{Path: "totalSteps", Value: result.TotalSteps},
		{Path: "completedSteps", Value: result.CompletedSteps},
		{Path: "archiveEntries", Value: result.Entries},
		{Path: "archiveObject", Value: archiveObject},
	}
	if _, err := docRef.Update(ctx, updates); err != nil {
		return f.handleError(ctx, logCtx, docRef, "failed to mark job completed", err)
	}

	if err := f.triggerWorkflow(ctx, logCtx, docRef, jobID, archiveObject, result.Entries); err != nil {
		return err
	}

	logCtx.Info("Simulation batch complete.")
	return nil
}

// downloadBatch lists the PDFs under the batch prefix and pulls them
// down concurrently, preserving listing order.
func (f *SimulatorFunction) downloadBatch(ctx context.Context, bucketName, prefix string) ([]pipeline.Input, error) {
	bucket := f.storageClient.Bucket(bucketName)
	names, err := gcp.ListObjects(ctx, bucket, prefix, ".pdf")
	if err != nil {
		return nil, err
	}

	inputs := make([]pipeline.Input, len(names))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(10)
	for i, name := range names {
		eg.Go(func() error {
			data, err := gcp.ReadObject(gctx, bucket, name)
			if err != nil {
				return err
			}
			inputs[i] = pipeline.Input{Name: path.Base(name), Data: data}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return inputs, nil
}

func (f *SimulatorFunction) createJob(ctx context.Context, jobID, prefix string, documentCount int) (*firestore.DocumentRef, error) {
	docRef := f.firestoreClient.Collection(f.config.CollectionName).Doc(jobID)
	job := models.Job{
		BatchPrefix:   prefix,
		Status:        models.JobStatusProcessing,
		DocumentCount: documentCount,
		CreatedAt:     time.Now(),
	}
	if _, err := docRef.Set(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job record: %w", err)
	}
	return docRef, nil
}

func (f *SimulatorFunction) triggerWorkflow(ctx context.Context, logCtx *slog.Logger, docRef *firestore.DocumentRef, jobID, archiveObject string, entries int) error {
	if f.config.WorkflowID == "" {
		return nil
	}
	logCtx.Info("Triggering downstream workflow.")
	payload := models.SimulationCompletePayload{
		JobID:      jobID,
		ArchiveURI: fmt.Sprintf("gs://%s/%s", f.config.OutputBucket, archiveObject),
		EntryCount: entries,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return f.handleError(ctx, logCtx, docRef, "failed to marshal workflow payload", err)
	}
	req := &executionspb.CreateExecutionRequest{
		Parent: fmt.Sprintf("projects/%s/locations/%s/workflows/%s", f.config.ProjectID, f.config.WorkflowLocation, f.config.WorkflowID),
		Execution: &executionspb.Execution{
			Argument: string(payloadBytes),
		},
	}
	exec, err := f.executionsClient.CreateExecution(ctx, req)
	if err != nil {
		return f.handleError(ctx, logCtx, docRef, "failed to trigger workflow execution", err)
	}
	if _, err := docRef.Update(ctx, []firestore.Update{
		{Path: "workflowExecutionId", Value: exec.GetName()},
	}); err != nil {
		logCtx.Warn("Failed to record workflow execution id.", "error", err)
	}
	return nil
}

func (f *SimulatorFunction) handleError(ctx context.Context, logCtx *slog.Logger, docRef *firestore.DocumentRef, message string, originalErr error) error {
	fullError := fmt.Sprintf("%s: %v", message, originalErr)
	logCtx.Error(message, "error", originalErr)
	if err := f.updateStatus(ctx, docRef, models.JobStatusFailed, message); err != nil {
		logCtx.Error("CRITICAL: Failed to update Firestore status to FAILED after a processing error.", "updateError", err)
	}
	return fmt.Errorf("%s", fullError)
}

func (f *SimulatorFunction) updateStatus(ctx context.Context, docRef *firestore.DocumentRef, status, errDetails string) error {
	updates := []firestore.Update{
		{Path: "status", Value: status},
	}
	if errDetails != "" {
		updates = append(updates, firestore.Update{Path: "errorDetails", Value: errDetails})
	}
	_, err := docRef.Update(ctx, updates)
	return err
}
