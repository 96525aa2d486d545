package courier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	domainErr "github.com/Tanmoy095/logisynapse-fulfillment/internal/domain/errors"
)

// Client talks to the courier's JSON API. Every call carries the client timeout.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// NewClientWithHTTP allows injecting a test server client.
func NewClientWithHTTP(baseURL, token string, hc *http.Client) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), token: token, httpClient: hc}
}

var _ Adapter = (*Client)(nil)

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &domainErr.CourierProviderError{Op: op, Err: fmt.Errorf("marshal request: %w", err)}
		}
		reader = bytes.NewReader(payload)
	}
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return &domainErr.CourierProviderError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts and transport failures never say anything about the shipment.
		return &domainErr.CourierProviderError{Op: op, Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &domainErr.CourierProviderError{Op: op, Retryable: true, Err: err}
	}
	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		return &domainErr.CourierProviderError{Op: op, Retryable: true, Remark: resp.Status}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return &domainErr.CourierProviderError{Op: op, Remark: resp.Status + ": " + strings.TrimSpace(string(raw))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		log.Warn().Str("op", op).Int("status", resp.StatusCode).Msg("courier returned unparseable body")
		return &domainErr.CourierProviderError{Op: op, Remark: "unparseable response", Err: err}
	}
	return nil
}

type pincodeResponse struct {
	DeliveryCodes []struct {
		PostalCode struct {
			PrePaid string `json:"pre_paid"`
			Cash    string `json:"cash"`
			Pickup  string `json:"pickup"`
			City    string `json:"city"`
			State   string `json:"state_code"`
		} `json:"postal_code"`
	} `json:"delivery_codes"`
}

func (c *Client) CheckServiceability(ctx context.Context, pincode string) (PincodeInfo, error) {
	var resp pincodeResponse
	q := url.Values{"filter_codes": {pincode}}
	if err := c.do(ctx, "serviceability", http.MethodGet, "/c/api/pin-codes/json/", q, nil, &resp); err != nil {
		return PincodeInfo{}, err
	}
	info := PincodeInfo{Pincode: pincode}
	if len(resp.DeliveryCodes) == 0 {
		return info, nil
	}
	pc := resp.DeliveryCodes[0].PostalCode
	info.PickupAvailable = yes(pc.Pickup)
	info.CashOnDelivery = yes(pc.Cash)
	info.Serviceable = yes(pc.PrePaid) || info.CashOnDelivery
	info.City = pc.City
	info.State = pc.State
	return info, nil
}

func yes(s string) bool { return strings.EqualFold(strings.TrimSpace(s), "Y") }

func (c *Client) AllocateWaybills(ctx context.Context, count int) ([]string, error) {
	if count <= 0 {
		return nil, nil
	}
	var raw string
	q := url.Values{"count": {strconv.Itoa(count)}}
	if err := c.do(ctx, "allocate_waybills", http.MethodGet, "/waybill/api/bulk/json/", q, nil, &raw); err != nil {
		return nil, err
	}
	var out []string
	for _, wb := range strings.Split(raw, ",") {
		if wb = strings.TrimSpace(wb); wb != "" {
			out = append(out, wb)
		}
	}
	if len(out) == 0 {
		return nil, &domainErr.CourierProviderError{Op: "allocate_waybills", Remark: "empty waybill batch"}
	}
	return out, nil
}

// pickupLocation is a registered warehouse name, or a full address for an
// ad hoc pickup point.
type pickupLocation struct {
	Name    string `json:"name"`
	Address string `json:"add,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Pincode string `json:"pin,omitempty"`
	Phone   string `json:"phone,omitempty"`
}

type createRequest struct {
	PickupLocation pickupLocation    `json:"pickup_location"`
	Shipments      []ShipmentRequest `json:"shipments"`
}

// CreateShipment picks up from the named warehouse, or from the return
// party's address when no warehouse name is set.
func (c *Client) CreateShipment(ctx context.Context, req ShipmentRequest) (CreateResult, error) {
	body := createRequest{Shipments: []ShipmentRequest{req}}
	if req.PickupLocation != "" {
		body.PickupLocation.Name = req.PickupLocation
	} else {
		r := req.Return
		body.PickupLocation = pickupLocation{Name: r.Name, Address: r.Address, City: r.City, State: r.State, Pincode: r.Pincode, Phone: r.Phone}
	}

	var res CreateResult
	if err := c.do(ctx, "create_shipment", http.MethodPost, "/api/cmu/create.json", nil, body, &res); err != nil {
		return CreateResult{}, err
	}
	return res, nil
}

func (c *Client) CancelShipment(ctx context.Context, waybill string) (CancelResult, error) {
	body := map[string]string{"waybill": waybill, "cancellation": "true"}
	var res CancelResult
	if err := c.do(ctx, "cancel_shipment", http.MethodPost, "/api/p/edit", nil, body, &res); err != nil {
		return CancelResult{}, err
	}
	return res, nil
}

type trackResponse struct {
	ShipmentData []struct {
		Shipment struct {
			AWB         string `json:"AWB"`
			ReferenceNo string `json:"ReferenceNo"`
			Status      struct {
				Status       string `json:"Status"`
				StatusType   string `json:"StatusType"`
				Location     string `json:"StatusLocation"`
				Instructions string `json:"Instructions"`
				At           string `json:"StatusDateTime"`
			} `json:"Status"`
			Scans []struct {
				ScanDetail struct {
					Scan         string `json:"Scan"`
					ScanType     string `json:"ScanType"`
					Location     string `json:"ScannedLocation"`
					Instructions string `json:"Instructions"`
					At           string `json:"ScanDateTime"`
				} `json:"ScanDetail"`
			} `json:"Scans"`
		} `json:"Shipment"`
	} `json:"ShipmentData"`
}

const scanTimeLayout = "2006-01-02T15:04:05"

func parseScanTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339, scanTimeLayout, "2006-01-02T15:04:05.000"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

var ErrShipmentNotFound = errors.New("courier has no record of waybill")

func (c *Client) TrackShipment(ctx context.Context, waybill, referenceID string) (TrackResult, error) {
	q := url.Values{"waybill": {waybill}}
	if referenceID != "" {
		q.Set("ref_ids", referenceID)
	}
	var resp trackResponse
	if err := c.do(ctx, "track_shipment", http.MethodGet, "/api/v1/packages/json/", q, nil, &resp); err != nil {
		return TrackResult{}, err
	}
	if len(resp.ShipmentData) == 0 {
		return TrackResult{}, &domainErr.CourierProviderError{Op: "track_shipment", Err: ErrShipmentNotFound}
	}
	s := resp.ShipmentData[0].Shipment
	res := TrackResult{
		Waybill:     s.AWB,
		ReferenceID: s.ReferenceNo,
		Status:      s.Status.Status,
		StatusType:  s.Status.StatusType,
	}
	for _, sc := range s.Scans {
		res.Scans = append(res.Scans, Scan{
			Status:       sc.ScanDetail.Scan,
			StatusType:   sc.ScanDetail.ScanType,
			Location:     sc.ScanDetail.Location,
			Instructions: sc.ScanDetail.Instructions,
			At:           parseScanTime(sc.ScanDetail.At),
		})
	}
	return res, nil
}

type pickupResponse struct {
	PickupID json.Number `json:"pickup_id"`
	Error    any         `json:"error"`
}

func (c *Client) SchedulePickup(ctx context.Context, req PickupRequest) (PickupResult, error) {
	var resp pickupResponse
	if err := c.do(ctx, "schedule_pickup", http.MethodPost, "/fm/request/new/", nil, req, &resp); err != nil {
		return PickupResult{}, err
	}
	res := PickupResult{PickupID: resp.PickupID.String()}
	if resp.Error != nil {
		res.Error = fmt.Sprint(resp.Error)
	}
	res.Success = res.PickupID != "" && res.PickupID != "0" && res.Error == ""
	return res, nil
}

func (c *Client) RenderLabel(ctx context.Context, waybill string) (Label, error) {
	var resp struct {
		Packages []struct {
			Waybill     string  `json:"wbn"`
			OrderID     string  `json:"oid"`
			Barcode     string  `json:"barcode"`
			SortCode    string  `json:"sort_code"`
			Destination string  `json:"destination"`
			Name        string  `json:"name"`
			Address     string  `json:"address"`
			Pin         string  `json:"pin"`
			Phone       any     `json:"contact"`
			Sender      string  `json:"snm"`
			SenderAddr  string  `json:"sadd"`
			PaymentMode string  `json:"pt"`
			COD         float64 `json:"cod"`
			Weight      float64 `json:"weight"`
			Product     string  `json:"prd"`
			Date        string  `json:"cd"`
		} `json:"packages"`
	}
	q := url.Values{"wbns": {waybill}}
	if err := c.do(ctx, "render_label", http.MethodGet, "/api/p/packing_slip", q, nil, &resp); err != nil {
		return Label{}, err
	}
	if len(resp.Packages) == 0 {
		return Label{}, &domainErr.CourierProviderError{Op: "render_label", Err: ErrShipmentNotFound}
	}
	p := resp.Packages[0]
	label := Label{
		Waybill:      p.Waybill,
		OrderID:      p.OrderID,
		Barcode:      p.Barcode,
		SortCode:     p.SortCode,
		Destination:  p.Destination,
		Consignee:    Party{Name: p.Name, Address: p.Address, Pincode: p.Pin},
		Sender:       Party{Name: p.Sender, Address: p.SenderAddr},
		PaymentMode:  p.PaymentMode,
		WeightGrams:  int64(p.Weight),
		ProductDesc:  p.Product,
		ShipmentDate: p.Date,
	}
	if p.Phone != nil {
		label.Consignee.Phone = fmt.Sprint(p.Phone)
	}
	label.CODAmount = decimal.NewFromFloat(p.COD).Round(2)
	return label, nil
}
