package apperror

var messages = map[Code]string{
	CodeRequiredField:   "Required field is missing",
	CodeInvalidInput:    "Invalid input provided",
	CodeInvalidFormat:   "Invalid data format",
	CodeNotFound:        "Resource not found",
	CodeValidationError: "Validation error",

	CodeConfigurationError: "Configuration error",

	CodeExternalServiceError: "External service error",
	CodeServiceTimeout:       "Service request timeout",
	CodeServiceUnavailable:   "Service temporarily unavailable",
	CodeRateLimitExceeded:    "Rate limit exceeded",

	CodeInternalError: "Internal server error",
	CodeUnknownError:  "An unknown error occurred",

	CodeEthereumConnectionFailed: "Failed to connect to Ethereum node",
	CodeEthereumSubscribeFailed:  "Failed to subscribe to new heads",
	CodeEthereumRPCError:         "Ethereum RPC call failed",
	CodeContractCallFailed:       "Smart contract call failed",
	CodeInvalidContractResponse:  "Unexpected contract response",

	CodePoolNotFound:         "Pool not deployed",
	CodeRouterQuoteFailed:    "Router quote failed",
	CodeTickSimulationFailed: "Tick simulation failed",
	CodeFeedNotFound:         "No price feed for token and denomination",
	CodeInvalidFeedAnswer:    "Price feed returned an invalid answer",
	CodeDecimalsLookupFailed: "Failed to resolve token decimals",
	CodeQuotePublishFailed:   "Failed to publish quote",
	CodeCircuitOpen:          "Circuit breaker is open",

	CodeStaleFeed:            "Price feed data is stale",
	CodeSlippageExceeded:     "Dex quote deviates from oracle reference beyond tolerance",
	CodeUnauthorizedOperator: "Caller is not the authorized operator",
	CodeInvalidSlippage:      "Slippage haircut out of bounds",
	CodeInvalidTolerance:     "Oracle tolerance out of bounds",
}
