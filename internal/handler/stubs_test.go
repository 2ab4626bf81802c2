package handler

import (
	"context"
	"errors"

	"github.com/yuvinraja/crm-backend/internal/models"
	"github.com/yuvinraja/crm-backend/internal/service"
)

var errNotStubbed = errors.New("not stubbed")

type stubSegmentService struct {
	create    func(*service.CreateSegmentRequest) (*models.Segment, error)
	get       func(int64) (*models.Segment, error)
	update    func(int64, *service.UpdateSegmentRequest) (*models.Segment, error)
	del       func(int64) error
	preview   func(*service.PreviewSegmentRequest) (*models.AudiencePreview, error)
	customers func(int64) ([]*models.Customer, error)
}

func (s *stubSegmentService) Create(_ context.Context, req *service.CreateSegmentRequest) (*models.Segment, error) {
	if s.create == nil {
		return nil, errNotStubbed
	}
	return s.create(req)
}

func (s *stubSegmentService) GetByID(_ context.Context, id int64) (*models.Segment, error) {
	if s.get == nil {
		return nil, errNotStubbed
	}
	return s.get(id)
}

func (s *stubSegmentService) List(_ context.Context, page, pageSize int) (*service.SegmentListResult, error) {
	return &service.SegmentListResult{
		Data:       []*models.Segment{},
		Pagination: models.NewPaginationResult(page, pageSize, 0),
	}, nil
}

func (s *stubSegmentService) Update(_ context.Context, id int64, req *service.UpdateSegmentRequest) (*models.Segment, error) {
	if s.update == nil {
		return nil, errNotStubbed
	}
	return s.update(id, req)
}

func (s *stubSegmentService) Delete(_ context.Context, id int64) error {
	if s.del == nil {
		return errNotStubbed
	}
	return s.del(id)
}

func (s *stubSegmentService) Preview(_ context.Context, req *service.PreviewSegmentRequest) (*models.AudiencePreview, error) {
	if s.preview == nil {
		return nil, errNotStubbed
	}
	return s.preview(req)
}

func (s *stubSegmentService) Customers(_ context.Context, id int64) ([]*models.Customer, error) {
	if s.customers == nil {
		return nil, errNotStubbed
	}
	return s.customers(id)
}

type stubCampaignService struct {
	create   func(*service.CreateCampaignRequest) (*models.Campaign, error)
	get      func(int64) (*models.CampaignWithStats, error)
	list     func(models.CampaignFilter) (*service.CampaignListResult, error)
	stats    func(int64) (models.DeliveryStats, error)
	logs     func(id int64, status string, page, pageSize int) (*service.DeliveryLogListResult, error)
	dispatch func(int64) (*service.DispatchResult, error)
	preview  func(int64, *service.PreviewMessageRequest) (*service.PreviewMessageResult, error)
}

func (s *stubCampaignService) Create(_ context.Context, req *service.CreateCampaignRequest) (*models.Campaign, error) {
	if s.create == nil {
		return nil, errNotStubbed
	}
	return s.create(req)
}

func (s *stubCampaignService) GetByID(_ context.Context, id int64) (*models.CampaignWithStats, error) {
	if s.get == nil {
		return nil, errNotStubbed
	}
	return s.get(id)
}

func (s *stubCampaignService) List(_ context.Context, filter models.CampaignFilter) (*service.CampaignListResult, error) {
	if s.list == nil {
		return nil, errNotStubbed
	}
	return s.list(filter)
}

func (s *stubCampaignService) Stats(_ context.Context, id int64) (models.DeliveryStats, error) {
	if s.stats == nil {
		return models.DeliveryStats{}, errNotStubbed
	}
	return s.stats(id)
}

func (s *stubCampaignService) Logs(_ context.Context, id int64, status string, page, pageSize int) (*service.DeliveryLogListResult, error) {
	if s.logs == nil {
		return nil, errNotStubbed
	}
	return s.logs(id, status, page, pageSize)
}

func (s *stubCampaignService) Dispatch(_ context.Context, id int64) (*service.DispatchResult, error) {
	if s.dispatch == nil {
		return nil, errNotStubbed
	}
	return s.dispatch(id)
}

func (s *stubCampaignService) PreviewMessage(_ context.Context, id int64, req *service.PreviewMessageRequest) (*service.PreviewMessageResult, error) {
	if s.preview == nil {
		return nil, errNotStubbed
	}
	return s.preview(id, req)
}

type stubCustomerService struct {
	create func(*service.CreateCustomerRequest) (*models.Customer, error)
}

func (s *stubCustomerService) Create(_ context.Context, req *service.CreateCustomerRequest) (*models.Customer, error) {
	if s.create == nil {
		return nil, errNotStubbed
	}
	return s.create(req)
}

func (s *stubCustomerService) GetByID(_ context.Context, id int64) (*models.Customer, error) {
	return nil, models.ErrNotFoundWithMsg("customer not found")
}

func (s *stubCustomerService) List(_ context.Context, filter models.CustomerFilter) (*service.CustomerListResult, error) {
	return &service.CustomerListResult{
		Data:       []*models.Customer{},
		Pagination: models.NewPaginationResult(filter.Page, filter.PageSize, 0),
	}, nil
}

type stubOrderService struct {
	create func(*service.CreateOrderRequest) (*models.Order, error)
	list   func(models.OrderFilter) (*service.OrderListResult, error)
}

func (s *stubOrderService) Create(_ context.Context, req *service.CreateOrderRequest) (*models.Order, error) {
	if s.create == nil {
		return nil, errNotStubbed
	}
	return s.create(req)
}

func (s *stubOrderService) GetByID(_ context.Context, id int64) (*models.Order, error) {
	return nil, models.ErrNotFoundWithMsg("order not found")
}

func (s *stubOrderService) List(_ context.Context, filter models.OrderFilter) (*service.OrderListResult, error) {
	if s.list == nil {
		return nil, errNotStubbed
	}
	return s.list(filter)
}

type stubChecker struct{ err error }

func (c stubChecker) Health(context.Context) error { return c.err }

var (
	_ service.SegmentService  = (*stubSegmentService)(nil)
	_ service.CampaignService = (*stubCampaignService)(nil)
	_ service.CustomerService = (*stubCustomerService)(nil)
	_ service.OrderService    = (*stubOrderService)(nil)
)
