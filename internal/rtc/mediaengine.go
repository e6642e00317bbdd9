package rtc

import (
	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/cc"
	"github.com/pion/interceptor/pkg/gcc"
	"github.com/pion/webrtc/v3"
)

const (
	vp8PayloadType  = 96
	opusPayloadType = 111
	videoClockRate  = 90000

	// gcc starts probing from here until the first estimate arrives
	initialBitrate = 300_000
)

var videoRTCPFeedback = []webrtc.RTCPFeedback{
	{Type: webrtc.TypeRTCPFBGoogREMB},
	{Type: webrtc.TypeRTCPFBTransportCC},
	{Type: webrtc.TypeRTCPFBCCM, Parameter: "fir"},
	{Type: webrtc.TypeRTCPFBNACK},
	{Type: webrtc.TypeRTCPFBNACK, Parameter: "pli"},
}

// createPublisherAPI builds a webrtc API that sends one VP8 camera track and
// hands the send side estimator of every peer connection to allocator.
func createPublisherAPI(allocator *StreamAllocator, se webrtc.SettingEngine) (*webrtc.API, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := registerCodecs(mediaEngine); err != nil {
		return nil, err
	}

	// Create a InterceptorRegistry. This is the user configurable RTP/RTCP Pipeline.
	// This provides NACKs, RTCP Reports and other features.
	i := &interceptor.Registry{}

	congestionController, err := cc.NewInterceptor(func() (cc.BandwidthEstimator, error) {
		return gcc.NewSendSideBWE(gcc.SendSideBWEInitialBitrate(initialBitrate))
	})
	if err != nil {
		return nil, err
	}
	congestionController.OnNewPeerConnection(func(_ string, estimator cc.BandwidthEstimator) {
		allocator.SetBandwidthEstimator(estimator)
	})

	i.Add(congestionController)
	if err := webrtc.ConfigureTWCCHeaderExtensionSender(mediaEngine, i); err != nil {
		return nil, err
	}

	// Use the default set of Interceptors
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, i); err != nil {
		return nil, err
	}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(i),
		webrtc.WithSettingEngine(se),
	), nil
}

func registerCodecs(mediaEngine *webrtc.MediaEngine) error {
	if err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeOpus,
			ClockRate:   48000,
			Channels:    2,
			SDPFmtpLine: "minptime=10;useinbandfec=1",
		},
		PayloadType: opusPayloadType,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return err
	}

	return mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:     webrtc.MimeTypeVP8,
			ClockRate:    videoClockRate,
			RTCPFeedback: videoRTCPFeedback,
		},
		PayloadType: vp8PayloadType,
	}, webrtc.RTPCodecTypeVideo)
}
