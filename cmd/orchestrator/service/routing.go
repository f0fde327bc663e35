package service

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/lumina/orchestrator/cmd/orchestrator/models"
	"github.com/lumina/orchestrator/common/logger"
	"github.com/lumina/orchestrator/common/storage"
)

// ImageOrchestrator materializes image assets onto fast storage
type ImageOrchestrator interface {
	EnsureOrchestrated(ctx context.Context, asset *models.OrchestrationAsset) OrchestrationResult
}

// RoutingEngine turns parsed delivery requests into proxy actions. It owns
// no I/O of its own beyond consulting the tracker, validator and
// orchestrator; the thin forwarding layer executes whatever it decides.
type RoutingEngine struct {
	tracker      *AssetTracker
	validator    Validator
	orchestrator ImageOrchestrator
	keys         *storage.KeyGenerator
	log          *logger.Logger
}

// NewRoutingEngine creates a new routing engine
func NewRoutingEngine(
	tracker *AssetTracker,
	validator Validator,
	orchestrator ImageOrchestrator,
	keys *storage.KeyGenerator,
	log *logger.Logger,
) *RoutingEngine {
	return &RoutingEngine{
		tracker:      tracker,
		validator:    validator,
		orchestrator: orchestrator,
		keys:         keys,
		log:          log,
	}
}

// RouteImage handles iiif-img requests: thumbs fast path for full-region
// requests matching a pregenerated size, image-server tile path otherwise
func (e *RoutingEngine) RouteImage(ctx context.Context, req *models.ImageRequest) models.ProxyAction {
	asset, err := e.tracker.Get(ctx, req.AssetID)
	if err != nil {
		e.log.Error("failed to resolve asset", "asset_id", req.AssetID.String(), "error", err)
		return models.NewStatusCodeAction(http.StatusInternalServerError)
	}
	if asset == nil || !asset.Channels.Has(models.ChannelImage) {
		e.log.Debug("image request for unknown or non-image asset", "asset_id", req.AssetID.String())
		return models.NewStatusCodeAction(http.StatusNotFound)
	}

	requiresAuth := asset.RequiresAuth && !e.viewableUnauthorised(req, asset)

	if e.canHandleByThumb(req, asset) {
		if requiresAuth {
			result := e.validator.Validate(ctx, req.AssetID.Customer, asset.Roles,
				mechanismFor(req.Method), req.Credentials)
			if result == AccessUnauthorized {
				return models.NewStatusCodeAction(http.StatusUnauthorized)
			}
		}
		thumbPath := strings.Replace(req.RawPath, req.RoutePrefix, "thumbs", 1)
		e.log.Debug("request handled by thumbs", "asset_id", req.AssetID.String(), "path", thumbPath)
		return &models.ForwardAction{
			Target:       models.DestinationThumbs,
			Path:         thumbPath,
			RequiresAuth: asset.RequiresAuth,
		}
	}

	// Tile path: orchestration and auth validation run concurrently so
	// neither delays the other; both are awaited before deciding
	var authResult = AccessOpen
	var orchResult OrchestrationResult

	g, gctx := errgroup.WithContext(ctx)
	if requiresAuth {
		g.Go(func() error {
			authResult = e.validator.Validate(gctx, req.AssetID.Customer, asset.Roles,
				mechanismFor(req.Method), req.Credentials)
			return nil
		})
	}
	g.Go(func() error {
		orchResult = e.orchestrator.EnsureOrchestrated(gctx, asset)
		return nil
	})
	_ = g.Wait()

	if authResult == AccessUnauthorized {
		return models.NewStatusCodeAction(http.StatusUnauthorized)
	}
	switch orchResult {
	case ResultNotFound:
		return models.NewStatusCodeAction(http.StatusNotFound)
	case ResultError:
		return models.NewStatusCodeAction(http.StatusInternalServerError)
	}

	if req.Method == http.MethodHead {
		return models.NewStatusCodeAction(http.StatusOK)
	}

	return &models.ForwardAction{
		Target:       models.DestinationImageServer,
		Path:         imageServerPath(req),
		RequiresAuth: asset.RequiresAuth,
	}
}

// RouteTimeBased handles iiif-av requests, forwarding to the object store
func (e *RoutingEngine) RouteTimeBased(ctx context.Context, req *models.TimeBasedRequest) models.ProxyAction {
	asset, err := e.tracker.Get(ctx, req.AssetID)
	if err != nil {
		e.log.Error("failed to resolve asset", "asset_id", req.AssetID.String(), "error", err)
		return models.NewStatusCodeAction(http.StatusInternalServerError)
	}
	if asset == nil || !asset.Channels.Has(models.ChannelTimebased) {
		e.log.Debug("av request for unknown or non-av asset", "asset_id", req.AssetID.String())
		return models.NewStatusCodeAction(http.StatusNotFound)
	}

	location := e.keys.TimebasedLocation(req.AssetID.String(), req.RenditionPath)
	return e.routeToObjectStore(ctx, &req.AssetRequest, asset, e.keys.PublicURL(location))
}

// RouteFile handles file channel requests, forwarding to the object store
func (e *RoutingEngine) RouteFile(ctx context.Context, req *models.AssetRequest) models.ProxyAction {
	asset, err := e.tracker.Get(ctx, req.AssetID)
	if err != nil {
		e.log.Error("failed to resolve asset", "asset_id", req.AssetID.String(), "error", err)
		return models.NewStatusCodeAction(http.StatusInternalServerError)
	}
	if asset == nil || !asset.Channels.Has(models.ChannelFile) {
		e.log.Debug("file request for unknown asset or wrong channel", "asset_id", req.AssetID.String())
		return models.NewStatusCodeAction(http.StatusNotFound)
	}

	target := e.keys.PublicURL(e.keys.StorageLocation(req.AssetID.String()))
	if asset.Location != "" {
		if ref, err := storage.ParseURI(asset.Location); err == nil {
			target = e.keys.PublicURL(ref)
		}
	}
	return e.routeToObjectStore(ctx, req, asset, target)
}

// routeToObjectStore applies the shared decision ladder for routes that
// forward straight to stored objects. Open assets never block on auth.
func (e *RoutingEngine) routeToObjectStore(ctx context.Context, req *models.AssetRequest, asset *models.OrchestrationAsset, target string) models.ProxyAction {
	if !asset.RequiresAuth {
		return &models.ForwardAction{Target: models.DestinationObjectStore, Path: target}
	}

	result := e.validator.Validate(ctx, req.AssetID.Customer, asset.Roles,
		mechanismFor(req.Method), req.Credentials)
	if result == AccessUnauthorized {
		e.log.Debug("caller not authorized", "asset_id", req.AssetID.String(), "method", req.Method)
		return models.NewStatusCodeAction(http.StatusUnauthorized)
	}

	if req.Method == http.MethodHead {
		// Existence/permission probe only, nothing to forward
		return models.NewStatusCodeAction(http.StatusOK)
	}

	return &models.ForwardAction{
		Target:       models.DestinationObjectStore,
		Path:         target,
		RequiresAuth: true,
	}
}

// viewableUnauthorised reports whether a full-region request is small
// enough to fall under the asset's max-unauthorised threshold
func (e *RoutingEngine) viewableUnauthorised(req *models.ImageRequest, asset *models.OrchestrationAsset) bool {
	if !req.IIIF.FullRegion() || asset.MaxUnauthorised <= 0 {
		return false
	}
	width, height, ok := req.IIIF.ExactSize()
	if !ok {
		return false
	}
	return max(width, height) <= asset.MaxUnauthorised
}

// canHandleByThumb reports whether a full-region, non-max request matches
// a pregenerated open thumbnail size exactly
func (e *RoutingEngine) canHandleByThumb(req *models.ImageRequest, asset *models.OrchestrationAsset) bool {
	if !req.IIIF.FullRegion() || req.IIIF.MaxSize() || len(asset.OpenThumbs) == 0 {
		return false
	}
	width, height, ok := req.IIIF.ExactSize()
	if !ok {
		return false
	}
	longest := max(width, height)
	for _, size := range asset.OpenThumbs {
		if size == longest {
			return true
		}
	}
	return false
}

// mechanismFor restricts GETs to cookie auth; HEAD and other methods may
// also present a bearer token
func mechanismFor(method string) AuthMechanism {
	if method == http.MethodGet {
		return MechanismCookie
	}
	return MechanismAll
}

// imageServerPath rewrites an image request onto the tile server, which
// addresses orchestrated assets by their percent-encoded fast-disk key
func imageServerPath(req *models.ImageRequest) string {
	encoded := strings.ReplaceAll(req.AssetID.String(), "/", "%2F")
	return "/iiif/2/" + encoded + "/" + strings.Join([]string{
		req.IIIF.Region, req.IIIF.Size, req.IIIF.Rotation, req.IIIF.Quality + "." + req.IIIF.Format,
	}, "/")
}
