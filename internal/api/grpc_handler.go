package api

import (
	"context"
	"errors"
	"log"
	"math"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"storefront-service/internal/domain"
	"storefront-service/internal/store"
)

// CatalogServer is the server API for the storefront.v1.Catalog service.
// Messages are protobuf well-known types so no generated code is needed.
type CatalogServer interface {
	GetProductDetails(ctx context.Context, req *wrapperspb.Int64Value) (*structpb.Struct, error)
	GetCategoryBySlug(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error)
	ListProducts(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

const catalogServiceName = "storefront.v1.Catalog"

// CatalogServiceDesc is the grpc.ServiceDesc for the storefront.v1.Catalog service.
var CatalogServiceDesc = grpc.ServiceDesc{
	ServiceName: catalogServiceName,
	HandlerType: (*CatalogServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetProductDetails", Handler: catalogGetProductDetailsHandler},
		{MethodName: "GetCategoryBySlug", Handler: catalogGetCategoryBySlugHandler},
		{MethodName: "ListProducts", Handler: catalogListProductsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "storefront/v1/catalog.proto",
}

// RegisterCatalogServer registers srv on s.
func RegisterCatalogServer(s grpc.ServiceRegistrar, srv CatalogServer) {
	s.RegisterService(&CatalogServiceDesc, srv)
}

func catalogGetProductDetailsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.Int64Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CatalogServer).GetProductDetails(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + catalogServiceName + "/GetProductDetails"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CatalogServer).GetProductDetails(ctx, req.(*wrapperspb.Int64Value))
	}
	return interceptor(ctx, in, info, handler)
}

func catalogGetCategoryBySlugHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CatalogServer).GetCategoryBySlug(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + catalogServiceName + "/GetCategoryBySlug"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CatalogServer).GetCategoryBySlug(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func catalogListProductsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CatalogServer).ListProducts(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + catalogServiceName + "/ListProducts"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CatalogServer).ListProducts(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// CatalogClient calls the storefront.v1.Catalog service.
type CatalogClient struct {
	cc grpc.ClientConnInterface
}

func NewCatalogClient(cc grpc.ClientConnInterface) *CatalogClient {
	return &CatalogClient{cc: cc}
}

func (c *CatalogClient) GetProductDetails(ctx context.Context, in *wrapperspb.Int64Value, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+catalogServiceName+"/GetProductDetails", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CatalogClient) GetCategoryBySlug(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+catalogServiceName+"/GetCategoryBySlug", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CatalogClient) ListProducts(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+catalogServiceName+"/ListProducts", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// GRPCHandler implements CatalogServer on top of the catalog store.
type GRPCHandler struct {
	categoryStore store.CategoryStorer
	productStore  store.ProductStorer
	cfg           HandlerConfig
}

var _ CatalogServer = (*GRPCHandler)(nil)

// NewGRPCHandler creates a new GRPCHandler.
func NewGRPCHandler(cs store.CategoryStorer, ps store.ProductStorer, cfg HandlerConfig) *GRPCHandler {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 10
	}
	if cfg.MaxPageSize < cfg.PageSize {
		cfg.MaxPageSize = cfg.PageSize
	}
	return &GRPCHandler{categoryStore: cs, productStore: ps, cfg: cfg}
}

// --- Helper: Error Mapping ---
func mapStoreErrorToGrpcStatus(err error, resourceName string, resourceID interface{}) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, store.ErrCategoryNotFound), errors.Is(err, store.ErrProductNotFound):
		return status.Errorf(codes.NotFound, "%s %v not found", resourceName, resourceID)
	case errors.Is(err, store.ErrInvalidOrdering):
		return status.Error(codes.InvalidArgument, "ordering must be one of name, -name, price, -price")
	default:
		log.Printf("ERROR: Store operation for %s %v failed: %v", resourceName, resourceID, err)
		return status.Errorf(codes.Internal, "Failed to process request for %s %v", resourceName, resourceID)
	}
}

func (s *GRPCHandler) GetProductDetails(ctx context.Context, req *wrapperspb.Int64Value) (*structpb.Struct, error) {
	productID := req.GetValue()
	log.Printf("INFO: Received gRPC GetProductDetails request for ID: %d", productID)

	if productID <= 0 {
		return nil, status.Errorf(codes.InvalidArgument, "Product ID must be a positive integer")
	}

	product, err := s.productStore.GetProductByID(ctx, productID)
	if err != nil {
		return nil, mapStoreErrorToGrpcStatus(err, "Product", productID)
	}
	if !product.Available {
		return nil, status.Errorf(codes.NotFound, "Product %d not found", productID)
	}

	out, err := structpb.NewStruct(productFields(*product))
	if err != nil {
		log.Printf("ERROR: Failed to convert product %d to struct: %v", productID, err)
		return nil, status.Errorf(codes.Internal, "Failed to process product data for ID %d", productID)
	}
	return out, nil
}

func (s *GRPCHandler) GetCategoryBySlug(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	slug := req.GetValue()
	log.Printf("INFO: Received gRPC GetCategoryBySlug request for slug: %q", slug)

	if slug == "" {
		return nil, status.Error(codes.InvalidArgument, "Category slug must not be empty")
	}

	category, err := s.categoryStore.GetCategoryBySlug(ctx, slug)
	if err != nil {
		return nil, mapStoreErrorToGrpcStatus(err, "Category", slug)
	}

	out, err := structpb.NewStruct(categoryFields(*category))
	if err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to process category data for %q", slug)
	}
	return out, nil
}

// ListProducts lists available products. The request may carry category (slug),
// ordering, page and page_size. An unknown ordering falls back to name order.
func (s *GRPCHandler) ListProducts(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	log.Printf("INFO: Received gRPC ListProducts request: %v", req.AsMap())

	page, err := intField(fields, "page", 1)
	if err != nil || page < 1 {
		return nil, status.Error(codes.InvalidArgument, "page must be a positive integer")
	}
	size, err := intField(fields, "page_size", s.cfg.PageSize)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "page_size must be an integer")
	}
	if size <= 0 {
		size = s.cfg.PageSize
	}
	if size > s.cfg.MaxPageSize {
		size = s.cfg.MaxPageSize
	}

	available := true
	params := store.ListProductsParams{
		Limit:     size,
		Offset:    (page - 1) * size,
		Available: &available,
		Ordering:  orderingOrDefault(fields["ordering"].GetStringValue()),
	}
	if slug := fields["category"].GetStringValue(); slug != "" {
		params.CategorySlug = &slug
	}

	products, totalCount, err := s.productStore.ListProducts(ctx, params)
	if err != nil {
		return nil, mapStoreErrorToGrpcStatus(err, "Products", "list")
	}
	if page > 1 && params.Offset >= totalCount {
		return nil, status.Error(codes.NotFound, invalidPageMessage)
	}

	results := make([]interface{}, 0, len(products))
	for _, p := range products {
		results = append(results, productFields(p))
	}

	out, err := structpb.NewStruct(map[string]interface{}{
		"count":   totalCount,
		"results": results,
	})
	if err != nil {
		log.Printf("ERROR: Failed to convert product list to struct: %v", err)
		return nil, status.Error(codes.Internal, "Failed to process product list")
	}
	return out, nil
}

// --- Helper Functions for Conversion ---

func categoryFields(c domain.Category) map[string]interface{} {
	return map[string]interface{}{
		"id":   c.ID,
		"name": c.Name,
		"slug": c.Slug,
	}
}

func productFields(p domain.Product) map[string]interface{} {
	m := map[string]interface{}{
		"id":          p.ID,
		"name":        p.Name,
		"slug":        p.Slug,
		"description": p.Description,
		"price":       domain.FormatPrice(p.Price),
		"image":       p.Image,
		"available":   p.Available,
	}
	if p.Category != nil {
		m["category"] = categoryFields(*p.Category)
	}
	return m
}

var errNotInteger = errors.New("not an integer")

// intField reads a whole number from a Struct field, returning def when it is absent.
func intField(fields map[string]*structpb.Value, name string, def int) (int, error) {
	v, ok := fields[name]
	if !ok {
		return def, nil
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, errNotInteger
	}
	if n.NumberValue != math.Trunc(n.NumberValue) || math.Abs(n.NumberValue) > math.MaxInt32 {
		return 0, errNotInteger
	}
	return int(n.NumberValue), nil
}
