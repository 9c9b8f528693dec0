package grpcclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/mri-check/internal/classifier"
	"github.com/example/mri-check/internal/logging"
)

// DefaultMethod is the unary method invoked when none is configured.
const DefaultMethod = "/mricheck.v1.Classifier/Predict"

// DialClassifier returns a ready-to-use classifier.Model backed by a gRPC model server.
// Requests and replies are google.protobuf.Struct messages: the request carries "shape" and a
// flat "instances" list, the reply carries "probabilities".
func DialClassifier(ctx context.Context, addr, method string, logger *zap.Logger, opts ...grpc.DialOption) (classifier.Model, *grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if method == "" {
		method = DefaultMethod
	}
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	}, opts...)

	conn, err := grpc.DialContext(dialCtx, addr, dialOpts...)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_classifier", "", err)
		logger.Error("failed to dial classifier", zap.Error(wrapped), zap.String("addr", addr))
		return nil, nil, wrapped
	}
	return &grpcModel{conn: conn, method: method, logger: logger.Named("grpcclient")}, conn, nil
}

type grpcModel struct {
	conn   grpc.ClientConnInterface
	method string
	logger *zap.Logger
}

func (g *grpcModel) Predict(ctx context.Context, input *classifier.Tensor) ([]float32, error) {
	req, err := encodeTensor(input)
	if err != nil {
		return nil, logging.NewOperationError("grpcclient.encode", "", err)
	}

	reply := &structpb.Struct{}
	if err := g.conn.Invoke(ctx, g.method, req, reply); err != nil {
		wrapped := logging.NewOperationError("grpcclient.predict", "", err)
		g.logger.Error("classifier call failed", zap.Error(wrapped), zap.String("method", g.method))
		return nil, wrapped
	}

	probs, err := decodeProbabilities(reply)
	if err != nil {
		return nil, logging.NewOperationError("grpcclient.decode", "", err)
	}
	return probs, nil
}

func encodeTensor(input *classifier.Tensor) (*structpb.Struct, error) {
	flat := input.Flatten()
	instances := make([]*structpb.Value, len(flat))
	for i, v := range flat {
		instances[i] = structpb.NewNumberValue(float64(v))
	}
	shape := make([]*structpb.Value, 0, 4)
	for _, d := range classifier.Shape() {
		shape = append(shape, structpb.NewNumberValue(float64(d)))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"shape":     structpb.NewListValue(&structpb.ListValue{Values: shape}),
		"instances": structpb.NewListValue(&structpb.ListValue{Values: instances}),
	}}, nil
}

func decodeProbabilities(reply *structpb.Struct) ([]float32, error) {
	field, ok := reply.GetFields()["probabilities"]
	if !ok {
		return nil, errors.New("reply has no probabilities")
	}
	list := field.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("probabilities is %T, want list", field.GetKind())
	}
	out := make([]float32, 0, len(list.GetValues()))
	for i, v := range list.GetValues() {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, fmt.Errorf("probability %d is not a number", i)
		}
		out = append(out, float32(n.NumberValue))
	}
	return out, nil
}
