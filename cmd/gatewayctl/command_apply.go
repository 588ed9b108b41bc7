package main

import (
	"context"
	"fmt"
	"os"

	"github.com/smartexpense/gatewayctl/internal/gateway"
	"github.com/smartexpense/gatewayctl/internal/loader"
	"github.com/smartexpense/gatewayctl/internal/model"
	"github.com/smartexpense/gatewayctl/internal/reconcile"
	"github.com/smartexpense/gatewayctl/internal/render"
)

func runApply() error {
	fmt.Println("□ Loading desired state...")
	desired, err := loadDesired()
	if err != nil {
		return err
	}

	ctx := context.Background()
	client, err := gateway.NewAWS(ctx, desired.API.Region)
	if err != nil {
		return err
	}
	reconciler := reconcile.New(client, reconcile.Options{Out: os.Stdout})
	renderer := render.NewRenderer()

	if dryRun || debugMode {
		plan, err := reconciler.Plan(ctx, desired)
		if err != nil {
			return fmt.Errorf("failed to compute plan: %w", err)
		}
		fmt.Print(renderer.PlanText(plan))
		if dryRun {
			return nil
		}
	}

	report, runErr := reconciler.Run(ctx, desired)
	fmt.Print(renderer.ReportText(report))
	if runErr != nil {
		return fmt.Errorf("reconciliation failed: %w", runErr)
	}
	return nil
}

// loadDesired loads the desired-state file and applies flag overrides
func loadDesired() (*model.Desired, error) {
	desired, err := loader.LoadDesired(desiredFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load desired state: %w", err)
	}
	if apiName != "" {
		desired.API.Name = apiName
	}
	if region != "" {
		desired.API.Region = region
	}
	if stage != "" {
		desired.API.Stage = stage
	}
	return desired, nil
}
