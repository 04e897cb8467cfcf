package apperror

// Code identifies a failure reason. Callers branch on codes, never on messages.
type Code string

// General error codes
const (
	CodeRequiredField   Code = "REQUIRED_FIELD"
	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeInvalidFormat   Code = "INVALID_FORMAT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeValidationError Code = "VALIDATION_ERROR"

	CodeConfigurationError Code = "CONFIGURATION_ERROR"

	CodeExternalServiceError Code = "EXTERNAL_SERVICE_ERROR"
	CodeServiceTimeout       Code = "SERVICE_TIMEOUT"
	CodeServiceUnavailable   Code = "SERVICE_UNAVAILABLE"
	CodeRateLimitExceeded    Code = "RATE_LIMIT_EXCEEDED"

	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
)

// Collaborator failures. These are soft: the quoting core turns them into zero quotes.
const (
	CodeEthereumConnectionFailed Code = "ETHEREUM_CONNECTION_FAILED"
	CodeEthereumSubscribeFailed  Code = "ETHEREUM_SUBSCRIBE_FAILED"
	CodeEthereumRPCError         Code = "ETHEREUM_RPC_ERROR"
	CodeContractCallFailed       Code = "CONTRACT_CALL_FAILED"
	CodeInvalidContractResponse  Code = "INVALID_CONTRACT_RESPONSE"

	CodePoolNotFound         Code = "POOL_NOT_FOUND"
	CodeRouterQuoteFailed    Code = "ROUTER_QUOTE_FAILED"
	CodeTickSimulationFailed Code = "TICK_SIMULATION_FAILED"
	CodeFeedNotFound         Code = "FEED_NOT_FOUND"
	CodeInvalidFeedAnswer    Code = "INVALID_FEED_ANSWER"
	CodeDecimalsLookupFailed Code = "DECIMALS_LOOKUP_FAILED"
	CodeQuotePublishFailed   Code = "QUOTE_PUBLISH_FAILED"
	CodeCircuitOpen          Code = "CIRCUIT_OPEN"
)

// Hard failures. These abort a top-level quote or admin call.
const (
	CodeStaleFeed            Code = "STALE_FEED"
	CodeSlippageExceeded     Code = "SLIPPAGE_EXCEEDED"
	CodeUnauthorizedOperator Code = "UNAUTHORIZED_OPERATOR"
	CodeInvalidSlippage      Code = "INVALID_SLIPPAGE"
	CodeInvalidTolerance     Code = "INVALID_TOLERANCE"
)
