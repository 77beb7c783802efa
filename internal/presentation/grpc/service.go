package grpc

import (
	"context"

	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/peacemap/riskengine/internal/application/dto"
	"github.com/peacemap/riskengine/internal/application/manager"
	"github.com/peacemap/riskengine/internal/domain/service"
)

// ServiceName is the fully qualified RiskService name.
const ServiceName = "riskengine.v1.RiskService"

// RiskServiceServer is the server API for RiskService.
type RiskServiceServer interface {
	CalculateCompositeRisk(context.Context, *dto.ScoreRequest) (*ScoreResponse, error)
	CalculateRegionalRisk(context.Context, *dto.ScoreRequest) (*ScoreResponse, error)
	CalculateSupplierRisk(context.Context, *dto.SupplierRequest) (*ScoreResponse, error)
	DetectAnomalies(context.Context, *dto.ScoreRequest) (*ScoreResponse, error)
	CalculateAllRisks(context.Context, *dto.ScoreRequest) (*AllRisksResponse, error)
	TrainAnomalyDetector(context.Context, *dto.TrainRequest) (*TrainResponse, error)
	GetRiskSummary(context.Context, *RegionRequest) (*manager.Summary, error)
	GetRiskTrends(context.Context, *TrendsRequest) (*manager.Trends, error)
	ListActiveAlerts(context.Context, *RegionRequest) (*AlertsResponse, error)
	AcknowledgeAlert(context.Context, *AcknowledgeRequest) (*AcknowledgeResponse, error)
	GetRiskStatistics(context.Context, *Empty) (*manager.Statistics, error)
	GetCalculatorStatus(context.Context, *Empty) (*CalculatorStatusResponse, error)
	GetCompositeTrends(context.Context, *RegionRequest) (*manager.CompositeTrend, error)
	CompareRegions(context.Context, *Empty) (*manager.RegionComparison, error)
	ListSuppliersAtRisk(context.Context, *ThresholdRequest) (*SuppliersResponse, error)
	GetAnomalySummary(context.Context, *Empty) (*manager.AnomalySummary, error)
	GetCapabilities(context.Context, *Empty) (*service.Capabilities, error)
	Export(context.Context, *ExportRequest) (*ExportResponse, error)
}

// FullMethod returns the "/service/method" name used by interceptors.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// RegisterRiskServiceServer registers srv with s.
func RegisterRiskServiceServer(s grpclib.ServiceRegistrar, srv RiskServiceServer) {
	s.RegisterService(&riskServiceDesc, srv)
}

var riskServiceDesc = grpclib.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RiskServiceServer)(nil),
	Methods: []grpclib.MethodDesc{
		unary("CalculateCompositeRisk", RiskServiceServer.CalculateCompositeRisk),
		unary("CalculateRegionalRisk", RiskServiceServer.CalculateRegionalRisk),
		unary("CalculateSupplierRisk", RiskServiceServer.CalculateSupplierRisk),
		unary("DetectAnomalies", RiskServiceServer.DetectAnomalies),
		unary("CalculateAllRisks", RiskServiceServer.CalculateAllRisks),
		unary("TrainAnomalyDetector", RiskServiceServer.TrainAnomalyDetector),
		unary("GetRiskSummary", RiskServiceServer.GetRiskSummary),
		unary("GetRiskTrends", RiskServiceServer.GetRiskTrends),
		unary("ListActiveAlerts", RiskServiceServer.ListActiveAlerts),
		unary("AcknowledgeAlert", RiskServiceServer.AcknowledgeAlert),
		unary("GetRiskStatistics", RiskServiceServer.GetRiskStatistics),
		unary("GetCalculatorStatus", RiskServiceServer.GetCalculatorStatus),
		unary("GetCompositeTrends", RiskServiceServer.GetCompositeTrends),
		unary("CompareRegions", RiskServiceServer.CompareRegions),
		unary("ListSuppliersAtRisk", RiskServiceServer.ListSuppliersAtRisk),
		unary("GetAnomalySummary", RiskServiceServer.GetAnomalySummary),
		unary("GetCapabilities", RiskServiceServer.GetCapabilities),
		unary("Export", RiskServiceServer.Export),
	},
	Streams: []grpclib.StreamDesc{},
}

// unary builds the method descriptor for a request/response call, routing
// through the server's interceptor chain when one is installed.
func unary[Req, Resp any](name string, call func(RiskServiceServer, context.Context, *Req) (*Resp, error)) grpclib.MethodDesc {
	return grpclib.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpclib.UnaryServerInterceptor) (any, error) {
			req := new(Req)
			if err := dec(req); err != nil {
				return nil, status.Errorf(codes.InvalidArgument, "malformed %s request: %v", name, err)
			}
			if interceptor == nil {
				return call(srv.(RiskServiceServer), ctx, req)
			}
			info := &grpclib.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(RiskServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, req, info, handler)
		},
	}
}
