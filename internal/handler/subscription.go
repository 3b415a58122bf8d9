package handler

import (
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dispatch-backoffice/internal/service"
)

func (h *TenantHandler) Subscription(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	v, err := h.Svc.Subscription.Status(ctx, actor(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

// SubmitReceipt accepts a multipart "file" with the payment receipt.
func (h *TenantHandler) SubmitReceipt(c echo.Context) error {
	name, r, err := formFile(c)
	if err != nil {
		return writeError(c, err)
	}
	defer r.Close()
	ctx, cancel := reqCtx(c)
	defer cancel()
	t, err := h.Svc.Subscription.SubmitReceipt(ctx, actor(c), name, r)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusAccepted, echo.Map{
		"status":               "payment_pending",
		"payment_submitted_at": t.PaymentSubmittedAt,
		"payment_receipt_ref":  t.PaymentReceiptRef,
	})
}

type planReq struct {
	Plan string `json:"plan"`
}

func (h *TenantHandler) ChangePlan(c echo.Context) error {
	var req planReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	t, err := h.Svc.Subscription.ChangePlan(ctx, actor(c), req.Plan)
	if err != nil {
		return writeError(c, err)
	}
	if t.RequestedPlan != "" {
		return c.JSON(http.StatusAccepted, echo.Map{"plan": t.Plan, "requested_plan": t.RequestedPlan})
	}
	return c.JSON(http.StatusOK, echo.Map{"plan": t.Plan})
}

func (h *TenantHandler) Documents(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	v, err := h.Svc.Documents.Center(ctx, actor(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

// UploadCompanyDocument stores a company compliance file.  An optional
// "expiry" form value (YYYY-MM-DD) applies to authority and insurance.
func (h *TenantHandler) UploadCompanyDocument(c echo.Context) error {
	var expiry *time.Time
	if v := strings.TrimSpace(c.FormValue("expiry")); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return writeError(c, &service.ValidationError{Fields: map[string]string{"expiry": "use YYYY-MM-DD"}})
		}
		expiry = &t
	}
	name, r, err := formFile(c)
	if err != nil {
		return writeError(c, err)
	}
	defer r.Close()
	ctx, cancel := reqCtx(c)
	defer cancel()
	t, err := h.Svc.Documents.AttachCompanyDocument(ctx, actor(c), c.Param("kind"), name, r, expiry)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, t)
}

// DownloadDocument streams a stored document of the caller's company.
func (h *TenantHandler) DownloadDocument(c echo.Context) error {
	ref := c.QueryParam("ref")
	ctx, cancel := reqCtx(c)
	defer cancel()
	rc, err := h.Svc.Documents.Open(ctx, actor(c), ref)
	if err != nil {
		return writeError(c, err)
	}
	defer rc.Close()
	ct := mime.TypeByExtension(path.Ext(ref))
	if ct == "" {
		ct = echo.MIMEOctetStream
	}
	return c.Stream(http.StatusOK, ct, rc)
}

// formFile opens the multipart "file" field.
func formFile(c echo.Context) (string, io.ReadCloser, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return "", nil, &service.ValidationError{Fields: map[string]string{"file": "required"}}
	}
	f, err := fh.Open()
	if err != nil {
		return "", nil, err
	}
	return fh.Filename, f, nil
}
