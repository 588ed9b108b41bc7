package main

import (
	"context"
	"fmt"

	"github.com/smartexpense/gatewayctl/internal/deploy"
	"github.com/smartexpense/gatewayctl/internal/gateway"
)

func runURL() error {
	desired, err := loadDesired()
	if err != nil {
		return err
	}

	ctx := context.Background()
	client, err := gateway.NewAWS(ctx, desired.API.Region)
	if err != nil {
		return err
	}

	api, err := client.LookupAPI(ctx, desired.API.Name)
	if err != nil {
		return fmt.Errorf("failed to look up api: %w", err)
	}

	fmt.Println(deploy.InvokeURL(api.ID, desired.API.Region, desired.API.Stage))
	return nil
}
