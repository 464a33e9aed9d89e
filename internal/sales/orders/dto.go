package orders

// ListSalesOrdersRequest filters order listings.
type ListSalesOrdersRequest struct {
	SalesCaseID *int64            `json:"sales_case_id"`
	CustomerID  *int64            `json:"customer_id"`
	Status      *SalesOrderStatus `json:"status"`
	Limit       int               `json:"limit"`
	Offset      int               `json:"offset"`
}
