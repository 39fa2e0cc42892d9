package server

import (
	"context"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/brojonat/neardonate/service/donation"
	"golang.org/x/sync/errgroup"
)

//go:embed templates/*.html
var templatesFS embed.FS

// TemplateRenderer holds parsed HTML templates
type TemplateRenderer struct {
	templates *template.Template
	logger    *slog.Logger
}

// NewTemplateRenderer creates a new template renderer from embedded files
func NewTemplateRenderer(logger *slog.Logger) (*TemplateRenderer, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	return &TemplateRenderer{
		templates: tmpl,
		logger:    logger,
	}, nil
}

// Render renders a template with the given data
func (tr *TemplateRenderer) Render(w http.ResponseWriter, name string, data interface{}) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return tr.templates.ExecuteTemplate(w, name, data)
}

// indexPage is the data rendered by index.html.
type indexPage struct {
	ContractID      string
	Beneficiary     string
	Donations       []donation.Donation
	TransactionHash string
	DonatedSoFar    string
	Errors          []string
}

// handleIndexPage serves the donation page: beneficiary, donation form and
// the latest donors. When the page is reached with ?transactionHashes=, the
// amount donated so far is resolved from the last listed transaction.
func handleIndexPage(renderer *TemplateRenderer, donations DonationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := buildIndexPage(r.Context(), donations, r.URL.Query().Get("transactionHashes"), renderer.logger)
		if err := renderer.Render(w, "index.html", page); err != nil {
			renderer.logger.Error("failed to render template", "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
	}
}

// buildIndexPage fetches the page's contract data concurrently. Failed
// lookups are reported on the page rather than failing the request.
func buildIndexPage(ctx context.Context, donations DonationService, txHashes string, logger *slog.Logger) *indexPage {
	page := &indexPage{ContractID: donations.ContractID()}

	var beneficiaryErr, donationsErr, txErr error

	// The lookups are independent, so one failing must not cancel the
	// others; each goroutine keeps its own error and returns nil.
	var g errgroup.Group
	g.Go(func() error {
		page.Beneficiary, beneficiaryErr = donations.GetBeneficiary(ctx)
		return nil
	})
	g.Go(func() error {
		page.Donations, donationsErr = donations.LatestDonations(ctx)
		return nil
	})
	if hash := lastTransactionHash(txHashes); hash != "" {
		page.TransactionHash = hash
		g.Go(func() error {
			if err := validateTxHash(hash); err != nil {
				txErr = err
				return nil
			}
			page.DonatedSoFar, txErr = donations.GetDonationFromTransaction(ctx, hash)
			return nil
		})
	}
	g.Wait()

	if beneficiaryErr != nil {
		page.Errors = append(page.Errors, "Could not load the beneficiary.")
		logger.WarnContext(ctx, "index page beneficiary lookup failed", "error", beneficiaryErr)
	}
	if donationsErr != nil {
		page.Errors = append(page.Errors, "Could not load the latest donations.")
		logger.WarnContext(ctx, "index page donations lookup failed", "error", donationsErr)
	}
	if txErr != nil {
		page.Errors = append(page.Errors, "Could not read the result of your donation.")
		logger.WarnContext(ctx, "index page transaction lookup failed",
			"tx_hash", page.TransactionHash,
			"error", txErr,
		)
	}

	return page
}

// lastTransactionHash returns the last hash of a comma separated list, as
// wallets append every transaction they signed.
func lastTransactionHash(hashes string) string {
	parts := strings.Split(hashes, ",")
	return strings.TrimSpace(parts[len(parts)-1])
}

// handleFavicon serves an empty favicon so browsers stop asking.
func handleFavicon() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
}
