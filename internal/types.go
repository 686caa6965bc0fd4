package internal

import (
	"strings"
	"time"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

type Category struct {
	Name              string   `json:"name"`
	DisplayName       string   `json:"displayName"`
	EstimatedQuantity int      `json:"estimatedQuantity"`
	Priority          Priority `json:"priority"`
	BudgetAllocation  float64  `json:"budgetAllocation"`
}

type PlanConstraints struct {
	MaxBudget          float64  `json:"maxBudget"`
	DeadlineDate       *string  `json:"deadlineDate,omitempty"`
	MustHaveCategories []string `json:"mustHaveCategories"`
}

type ProcurementPlan struct {
	Categories  []Category      `json:"categories"`
	Constraints PlanConstraints `json:"constraints"`
	Reasoning   string          `json:"reasoning"`
}

func (p ProcurementPlan) CategoryNames() []string {
	out := make([]string, 0, len(p.Categories))
	for _, c := range p.Categories {
		out = append(out, c.Name)
	}
	return out
}

type CandidateItem struct {
	ID           string  `json:"id" yaml:"id"`
	Name         string  `json:"name" yaml:"name"`
	Category     string  `json:"category" yaml:"category"`
	Price        float64 `json:"price" yaml:"price"`
	Rating       float64 `json:"rating" yaml:"rating"`
	ReviewCount  int     `json:"reviewCount" yaml:"reviewCount"`
	DeliveryDays int     `json:"deliveryDays" yaml:"deliveryDays"`
	SourceID     string  `json:"sourceId" yaml:"sourceId"`
	InStock      bool    `json:"inStock" yaml:"inStock"`
	Image        string  `json:"image" yaml:"image"`
	Description  string  `json:"description" yaml:"description"`
}

type ScoreBreakdown struct {
	PriceScore     float64 `json:"priceScore"`
	DeliveryScore  float64 `json:"deliveryScore"`
	RatingScore    float64 `json:"ratingScore"`
	BudgetFitScore float64 `json:"budgetFitScore"`
}

type ScoredItem struct {
	CandidateItem
	Score          float64        `json:"score"`
	Rank           int            `json:"rank"`
	ScoreBreakdown ScoreBreakdown `json:"scoreBreakdown"`
}

type AlternativeNote struct {
	ItemID   string `json:"itemId"`
	ItemName string `json:"itemName"`
	Reason   string `json:"reason"`
}

type Decision struct {
	WhySelected        []string          `json:"whySelected"`
	WhyNotAlternatives []AlternativeNote `json:"whyNotAlternatives"`
}

type CartLine struct {
	Item       ScoredItem   `json:"item"`
	Quantity   int          `json:"quantity"`
	Alternates []ScoredItem `json:"alternates"`
	Decision   Decision     `json:"decision"`
}

func (l CartLine) Cost() float64 {
	return l.Item.Price * float64(l.Quantity)
}

type DeliveryEstimate struct {
	SourceID      string  `json:"sourceId"`
	LineCount     int     `json:"lineCount"`
	EstimatedDate string  `json:"estimatedDate"`
	Cost          float64 `json:"cost"`
}

type UnifiedCart struct {
	Lines                []CartLine            `json:"lines"`
	TotalCost            float64               `json:"totalCost"`
	MaxBudget            float64               `json:"maxBudget"`
	BySource             map[string][]CartLine `json:"bySource"`
	DeliverySchedule     []DeliveryEstimate    `json:"deliverySchedule"`
	BudgetRemaining      float64               `json:"budgetRemaining"`
	BudgetUtilizationPct float64               `json:"budgetUtilizationPct"`
}

// Sources lists source IDs in delivery schedule order.
func (c UnifiedCart) Sources() []string {
	out := make([]string, 0, len(c.DeliverySchedule))
	for _, d := range c.DeliverySchedule {
		out = append(out, d.SourceID)
	}
	return out
}

type SavingsAnalysis struct {
	RandomShoppingCost float64 `json:"randomShoppingCost"`
	SingleSourceCost   float64 `json:"singleSourceCost"`
	AIOptimizedCost    float64 `json:"aiOptimizedCost"`
	MoneySaved         float64 `json:"moneySaved"`
	PercentSaved       float64 `json:"percentSaved"`
	DeliveryDaysSaved  int     `json:"deliveryDaysSaved"`
	QualityScoreGain   float64 `json:"qualityScoreGain"`
}

type CheckoutState string

const (
	CheckoutIdle           CheckoutState = "idle"
	CheckoutCollectingInfo CheckoutState = "collecting_info"
	CheckoutValidating     CheckoutState = "validating"
	CheckoutComplete       CheckoutState = "complete"

	processingPrefix = "processing_"
)

func ProcessingState(sourceID string) CheckoutState {
	return CheckoutState(processingPrefix + sourceID)
}

// ProcessingSource reports the source of a processing_<source> state.
func (s CheckoutState) ProcessingSource() (string, bool) {
	if !strings.HasPrefix(string(s), processingPrefix) {
		return "", false
	}
	return strings.TrimPrefix(string(s), processingPrefix), true
}

type CheckoutProgress struct {
	State            CheckoutState `json:"state"`
	ProgressPct      float64       `json:"progressPct"`
	CurrentSource    string        `json:"currentSource,omitempty"`
	CompletedSources []string      `json:"completedSources"`
	Message          string        `json:"message"`
}

// AnySource disables the preferred-source boost.
const AnySource = "any"

type Preferences struct {
	PreferredSource        string  `json:"preferredSource"`
	PrioritizeFastShipping bool    `json:"prioritizeFastShipping"`
	MaxDeliveryDays        int     `json:"maxDeliveryDays"`
	MinRating              float64 `json:"minRating"`
	EcoFriendly            bool    `json:"ecoFriendly"`
	BundleOrders           bool    `json:"bundleOrders"`
}

func DefaultPreferences() Preferences {
	return Preferences{
		PreferredSource:        AnySource,
		PrioritizeFastShipping: true,
		MaxDeliveryDays:        5,
		MinRating:              4.0,
		EcoFriendly:            false,
		BundleOrders:           true,
	}
}

type OptimizationMode string

const (
	ModeBalanced       OptimizationMode = "balanced"
	ModeCheapest       OptimizationMode = "cheapest"
	ModeFastest        OptimizationMode = "fastest"
	ModeHighestQuality OptimizationMode = "highest-quality"
)

func Modes() []OptimizationMode {
	return []OptimizationMode{ModeBalanced, ModeCheapest, ModeFastest, ModeHighestQuality}
}

func ParseMode(value string) (OptimizationMode, bool) {
	v := strings.ToLower(strings.TrimSpace(value))
	v = strings.ReplaceAll(v, "_", "-")
	for _, m := range Modes() {
		if string(m) == v {
			return m, true
		}
	}
	return "", false
}

type StageID string

const (
	StagePlanner   StageID = "planner"
	StageSourcing  StageID = "sourcing"
	StageRanking   StageID = "ranking"
	StageOptimizer StageID = "optimizer"
	StageCart      StageID = "cart"
	StageCheckout  StageID = "checkout"
	StageSystem    StageID = "system"
)

type EventKind string

const (
	KindThinking EventKind = "thinking"
	KindDecision EventKind = "decision"
	KindAction   EventKind = "action"
	KindResult   EventKind = "result"
)

type Event struct {
	ID        string    `json:"id"`
	StageID   StageID   `json:"stageId"`
	StageName string    `json:"stageName"`
	Icon      string    `json:"icon"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Kind      EventKind `json:"kind"`
}

type Metrics struct {
	CandidatesScanned   int           `json:"candidatesScanned"`
	SourcesAnalyzed     int           `json:"sourcesAnalyzed"`
	OptimizerLineCount  int           `json:"optimizerLineCount"`
	Elapsed             time.Duration `json:"elapsed"`
	BudgetEfficiency    float64       `json:"budgetEfficiency"`
	AverageQualityScore float64       `json:"averageQualityScore"`
	DeliveryScore       float64       `json:"deliveryScore"`
}

type GoalSource string

const (
	GoalFromText      GoalSource = "text"
	GoalFromEmailText GoalSource = "email_text"
	GoalFromEmailHTML GoalSource = "email_html"
	GoalFromXLSX      GoalSource = "xlsx"
	GoalFromPDF       GoalSource = "pdf"
)

type InboundMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}

type GoalRequestRow struct {
	ID         int
	Provider   string
	MessageID  string
	Subject    string
	Sender     string
	ReceivedAt string
	Hash       string
	Status     string
	RawRef     string
}

type RunRecord struct {
	ID            int
	TraceID       string
	RequestID     *int
	Goal          string
	Mode          OptimizationMode
	Status        string
	PlanJSON      string
	CartJSON      string
	SavingsJSON   string
	MetricsJSON   string
	CandidateJSON string
	CreatedAt     string
}
