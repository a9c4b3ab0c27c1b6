package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ StateCodec       = JSONStateCodec{}
	_ StateCodec       = (*SealedStateCodec)(nil)
	_ ScaResponseState = LoginState{}
	_ ScaResponseState = ConsentState{}
	_ ScaResponseState = PaymentState{}
	_ Signer           = BearerTokenSigner{}
	_ MetricsRecorder  = NopMetricsRecorder{}
	_ error            = (*RemoteFault)(nil)

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
