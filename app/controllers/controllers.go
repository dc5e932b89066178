package controllers

import (
	"github.com/elvinn/hongbao-cover-ai-sub000/internal/pkg/assetstore"
	"github.com/elvinn/hongbao-cover-ai-sub000/internal/pkg/credits"
	"github.com/elvinn/hongbao-cover-ai-sub000/internal/pkg/generation"
	"github.com/elvinn/hongbao-cover-ai-sub000/internal/pkg/payments"
)

var (
	creditsService    *credits.Service
	paymentsService   *payments.Service
	generationService *generation.Service
	assetStore        *assetstore.Client
)

// Initialize wires the shared service instances into the controller package.
// Must be called once during startup, before routes are registered.
func Initialize(cs *credits.Service, ps *payments.Service, gs *generation.Service, store *assetstore.Client) {
	creditsService = cs
	paymentsService = ps
	generationService = gs
	assetStore = store
}
