// Package grpc exposes entity resolution over gRPC. The service exchanges google.protobuf.Struct
// messages, so it needs no generated code: the request names the kind and its key fields and the
// response is the resolved record.
package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/parsascontentcorner/discordlitesync/internal/models"
	"github.com/parsascontentcorner/discordlitesync/internal/resolver"
	"github.com/parsascontentcorner/discordlitesync/internal/tier"
	"github.com/parsascontentcorner/discordlitesync/pkg/logger"
)

const (
	// EntityServiceName is the fully qualified service name
	EntityServiceName = "discordlitesync.entity.v1.EntityService"

	// ResolveMethod is the full method name of Resolve
	ResolveMethod = "/" + EntityServiceName + "/Resolve"
)

// keyFields lists the request fields that make up each kind's key, in ParseKey order
var keyFields = map[models.Kind][]string{
	models.KindGuild:       {"id"},
	models.KindUser:        {"id"},
	models.KindMember:      {"guild_id", "user_id"},
	models.KindChannel:     {"id"},
	models.KindRole:        {"guild_id", "role_id"},
	models.KindMessage:     {"id"},
	models.KindInteraction: {"id"},
	models.KindQuote:       {"id"},
	models.KindCharacter:   {"user_id", "name"},
	models.KindMarriage:    {"user_a", "user_b"},
}

// Resolver resolves an entity of any kind
type Resolver interface {
	Resolve(ctx context.Context, kind models.Kind, key any) (models.Entity, error)
}

// EntityServiceServer is the server API for EntityService
type EntityServiceServer interface {
	Resolve(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// EntityServiceDesc describes EntityService for grpc.Server.RegisterService
var EntityServiceDesc = grpc.ServiceDesc{
	ServiceName: EntityServiceName,
	HandlerType: (*EntityServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Resolve",
			Handler:    resolveHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "discordlitesync/entity/v1/entity.proto",
}

// RegisterEntityServiceServer registers srv with s
func RegisterEntityServiceServer(s grpc.ServiceRegistrar, srv EntityServiceServer) {
	s.RegisterService(&EntityServiceDesc, srv)
}

func resolveHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EntityServiceServer).Resolve(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: ResolveMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(EntityServiceServer).Resolve(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// EntityClient calls EntityService
type EntityClient struct {
	cc grpc.ClientConnInterface
}

// NewEntityClient creates a client over cc
func NewEntityClient(cc grpc.ClientConnInterface) *EntityClient {
	return &EntityClient{cc: cc}
}

// Resolve calls EntityService/Resolve
func (c *EntityClient) Resolve(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ResolveMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// EntityServer implements EntityService
type EntityServer struct {
	resolver Resolver
	logger   *zap.Logger
}

// NewEntityServer creates a new entity service server
func NewEntityServer(r Resolver, log *zap.Logger) *EntityServer {
	return &EntityServer{
		resolver: r,
		logger:   log,
	}
}

// Resolve returns the record named by the request's kind and key fields
func (s *EntityServer) Resolve(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()

	kindName := fields["kind"].GetStringValue()
	if kindName == "" {
		return nil, status.Error(codes.InvalidArgument, "kind is required")
	}
	kind, err := models.ParseKind(kindName)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	names := keyFields[kind]
	parts := make([]string, 0, len(names))
	for _, name := range names {
		part, err := fieldString(fields, name)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		parts = append(parts, part)
	}

	key, err := resolver.ParseKey(kind, parts)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	log := logger.FromContext(ctx, s.logger)
	log.Debug("Resolve called", zap.String("kind", kindName), zap.Any("key", key))

	entity, err := s.resolver.Resolve(ctx, kind, key)
	if err != nil {
		return nil, toStatus(err)
	}

	resp, err := toStruct(entity)
	if err != nil {
		log.Error("failed to encode entity", zap.String("kind", kindName), zap.Error(err))
		return nil, status.Errorf(codes.Internal, "failed to encode %s", kind)
	}
	return resp, nil
}

// fieldString reads a key field. Ids may be sent as strings or, when they fit a double exactly,
// as numbers
func fieldString(fields map[string]*structpb.Value, name string) (string, error) {
	v, ok := fields[name]
	if !ok {
		return "", fmt.Errorf("%s is required", name)
	}

	switch kind := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		if kind.StringValue == "" {
			return "", fmt.Errorf("%s is required", name)
		}
		return kind.StringValue, nil
	case *structpb.Value_NumberValue:
		n := kind.NumberValue
		if n < 0 || n != math.Trunc(n) || n > 1<<53 {
			return "", fmt.Errorf("%s must be an id, send large ids as strings", name)
		}
		return strconv.FormatUint(uint64(n), 10), nil
	default:
		return "", fmt.Errorf("%s must be a string", name)
	}
}

func toStruct(entity models.Entity) (*structpb.Struct, error) {
	data, err := json.Marshal(entity)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	m["kind"] = string(entity.EntityKind())
	return structpb.NewStruct(m)
}

// toStatus maps tier errors onto gRPC codes
func toStatus(err error) error {
	var remoteErr *tier.RemoteError
	switch {
	case tier.IsNotFound(err):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, resolver.ErrInvalidKey):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.As(err, &remoteErr):
		if remoteErr.RetryAfter > 0 {
			return status.Errorf(codes.Unavailable, "%v (retry after %s)", err, remoteErr.RetryAfter)
		}
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
