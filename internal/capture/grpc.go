package capture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"
)

// CodecName - content-subtype JSON кодека для CaptureService.
const CodecName = "json"

const (
	serviceName         = "captureinbox.v1.CaptureService"
	methodGetCapture    = "/" + serviceName + "/GetCapture"
	methodRetryCapture  = "/" + serviceName + "/RetryCapture"
	methodWatchCaptures = "/" + serviceName + "/WatchCaptures"
)

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec кодирует сообщения CaptureService в JSON.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return CodecName
}

type GetCaptureRequest struct {
	ID string `json:"id"`
}

type CaptureReply struct {
	Capture Capture `json:"capture"`
}

type RetryCaptureRequest struct {
	ID string `json:"id"`
}

type RetryCaptureReply struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type WatchRequest struct {
	Since     string `json:"since,omitempty"`
	CaptureID string `json:"captureId,omitempty"`
}

// CaptureServiceServer - серверная часть CaptureService.
type CaptureServiceServer interface {
	GetCapture(ctx context.Context, req *GetCaptureRequest) (*CaptureReply, error)
	RetryCapture(ctx context.Context, req *RetryCaptureRequest) (*RetryCaptureReply, error)
	WatchCaptures(req *WatchRequest, stream WatchStream) error
}

// WatchStream - серверный поток событий.
type WatchStream interface {
	Send(ev *WatchEvent) error
	Context() context.Context
}

var CaptureServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*CaptureServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetCapture", Handler: getCaptureHandler},
		{MethodName: "RetryCapture", Handler: retryCaptureHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "WatchCaptures", Handler: watchCapturesHandler, ServerStreams: true},
	},
	Metadata: "captureinbox/v1/capture.proto",
}

func RegisterCaptureServiceServer(s grpc.ServiceRegistrar, srv CaptureServiceServer) {
	s.RegisterService(&CaptureServiceDesc, srv)
}

func getCaptureHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetCaptureRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CaptureServiceServer).GetCapture(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetCapture}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CaptureServiceServer).GetCapture(ctx, req.(*GetCaptureRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func retryCaptureHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(RetryCaptureRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CaptureServiceServer).RetryCapture(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodRetryCapture}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CaptureServiceServer).RetryCapture(ctx, req.(*RetryCaptureRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func watchCapturesHandler(srv any, stream grpc.ServerStream) error {
	in := new(WatchRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(CaptureServiceServer).WatchCaptures(in, &watchServerStream{stream})
}

type watchServerStream struct {
	grpc.ServerStream
}

func (s *watchServerStream) Send(ev *WatchEvent) error {
	return s.ServerStream.SendMsg(ev)
}

// GrpcHandler реализует CaptureService поверх Service и Watcher.
type GrpcHandler struct {
	service Service
	watcher *Watcher
}

func NewGrpcHandler(service Service, watcher *Watcher) *GrpcHandler {
	return &GrpcHandler{service: service, watcher: watcher}
}

func (h *GrpcHandler) GetCapture(ctx context.Context, req *GetCaptureRequest) (*CaptureReply, error) {
	id, err := uuid.Parse(req.ID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid id")
	}
	item, err := h.service.Get(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return &CaptureReply{Capture: item}, nil
}

func (h *GrpcHandler) RetryCapture(ctx context.Context, req *RetryCaptureRequest) (*RetryCaptureReply, error) {
	id, err := uuid.Parse(req.ID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid id")
	}
	item, err := h.service.Retry(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return &RetryCaptureReply{ID: item.ID.String(), Status: string(item.Status)}, nil
}

func (h *GrpcHandler) WatchCaptures(req *WatchRequest, stream WatchStream) error {
	var captureID *uuid.UUID
	if req.CaptureID != "" {
		id, err := uuid.Parse(req.CaptureID)
		if err != nil {
			return status.Error(codes.InvalidArgument, "invalid captureId")
		}
		captureID = &id
	}

	return h.watcher.Watch(stream.Context(), ParseSince(req.Since), captureID, func(ev WatchEvent) error {
		return stream.Send(&ev)
	})
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return status.Error(codes.NotFound, "capture not found")
	case errors.Is(err, ErrAlreadyDone):
		return status.Error(codes.FailedPrecondition, "capture already processed")
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// Client - gRPC клиент CaptureService.
type Client struct {
	conn grpc.ClientConnInterface
}

func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func (c *Client) GetCapture(ctx context.Context, id string) (Capture, error) {
	out := new(CaptureReply)
	if err := c.conn.Invoke(ctx, methodGetCapture, &GetCaptureRequest{ID: id}, out, grpc.CallContentSubtype(CodecName)); err != nil {
		return Capture{}, err
	}
	return out.Capture, nil
}

func (c *Client) RetryCapture(ctx context.Context, id string) (RetryCaptureReply, error) {
	out := new(RetryCaptureReply)
	if err := c.conn.Invoke(ctx, methodRetryCapture, &RetryCaptureRequest{ID: id}, out, grpc.CallContentSubtype(CodecName)); err != nil {
		return RetryCaptureReply{}, err
	}
	return *out, nil
}

// ResolveFilename возвращает исходное имя файла снимка.
func (c *Client) ResolveFilename(ctx context.Context, id string) (string, error) {
	item, err := c.GetCapture(ctx, id)
	if err != nil {
		return "", err
	}
	return item.OriginalFilename, nil
}

// Watch читает поток событий, пока fn не вернёт ошибку или поток не закроется.
func (c *Client) Watch(ctx context.Context, req WatchRequest, fn func(WatchEvent) error) error {
	stream, err := c.conn.NewStream(ctx, &CaptureServiceDesc.Streams[0], methodWatchCaptures, grpc.CallContentSubtype(CodecName))
	if err != nil {
		return err
	}
	if err := stream.SendMsg(&req); err != nil {
		return fmt.Errorf("send watch request: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}

	for {
		var ev WatchEvent
		if err := stream.RecvMsg(&ev); err != nil {
			return err
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}
