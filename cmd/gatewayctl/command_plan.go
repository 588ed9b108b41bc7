package main

import (
	"context"
	"fmt"

	"github.com/smartexpense/gatewayctl/internal/gateway"
	"github.com/smartexpense/gatewayctl/internal/reconcile"
	"github.com/smartexpense/gatewayctl/internal/render"
)

func runPlan() error {
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

	fmt.Println("□ Computing plan...")
	reconciler := reconcile.New(client, reconcile.Options{})
	plan, err := reconciler.Plan(ctx, desired)
	if err != nil {
		return fmt.Errorf("failed to compute plan: %w", err)
	}

	renderer := render.NewRenderer()
	fmt.Print(renderer.PlanText(plan))

	if outputFile != "" {
		if err := renderer.WritePlan(plan, outputFile); err != nil {
			return err
		}
		fmt.Printf("✓ Saved to: %s\n", outputFile)
	}
	return nil
}
