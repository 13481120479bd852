// Package knowledge holds the static domain-knowledge bundle injected into
// every model prompt: table documentation, metric formulas, the defect-cause
// glossary, and the dialect and disambiguation policy notes. Schema or metric
// changes are made here, never in stage logic.
package knowledge

// Version identifies the bundle revision embedded in prompts and logs.
const Version = "v3"

// Quality-nonconformance fact table.
const TableQuality = "TB_SUM_MQS_QMHT200"

// Claim compensation table.
const TableClaims = "TB_S95_SALS_CLAM030"

// Sales result table.
const TableSales = "TB_S95_A_GALA_SALESPROD"

// TableNames lists every relation generated SQL is allowed to reference.
func TableNames() []string {
	return []string{TableQuality, TableClaims, TableSales}
}

// SchemaDoc documents the three relations with column semantics and example
// values. Dates are 8-digit YYYYMMDD strings throughout.
const SchemaDoc = `테이블 구조:
1. ` + TableQuality + ` (품질부적합통합실적)
   - DAY_CD: 분석일자, 'YYYYMMDD' 8자리 문자열 (예: '20250312')
   - TR_F_PRODQUANTITY: 제품생산량 (정수)
   - QLY_INC_HPW: 품질부적합발생량 (정수)
   - ITEM_TYPE_GROUP_NAME: 품종그룹명 (예: '후판', '선재', '열연')
   - EX_A_MAST_GD_CAU_NM: 외관결함원인명 (예: 'UST불량', '표면흠', '치수불량')
   - END_USER_NAME: 최종고객사명
   - QLY_INC_HPN_FAC_TP_NM: 품질부적합 발생공장구분명 (결함이 발견된 공장)
   - QLY_INC_RESP_FAC_TP_NM: 품질부적합 책임공장구분명 (결함 원인 책임 공장)
   - SPECIFICATION_CD_N: 규격약호 (제품 규격 코드, 예: 'SS400', 'API-X65')

2. ` + TableClaims + ` (클레임제기보상)
   - END_USER_NAME: 최종고객사명
   - RMA_QTY: Claim 보상금액 (정수)
   - ITEM_TYPE_GROUP_NAME: 품종그룹명
   - EXPECTED_RESOLUTION_DATE: Claim 보상품의일자, 'YYYYMMDD' 문자열

3. ` + TableSales + ` (매출실적분석제품)
   - END_USER_NAME: 최종고객사명
   - ITEM_TYPE_GROUP_NAME: 품종그룹명
   - SALE_QTY: 매출액 (정수)
   - SALES_DATE: 제품판매매출일자, 'YYYYMMDD' 문자열`

// MetricFormulas defines the two analytical rates. Both are ratios of
// integer columns, so generated SQL must force floating-point division.
const MetricFormulas = `지표 정의:
- 불량률(품질부적합률) = QLY_INC_HPW / TR_F_PRODQUANTITY * 100 (단위: %)
- 클레임률 = RMA_QTY / SALE_QTY * 100 (단위: %)`

// DefectGlossary explains recurring defect-cause and domain terms so that
// concept-lookup questions can be answered without touching the database.
const DefectGlossary = `용어 사전:
- UST불량: 초음파탐상검사(Ultrasonic Testing)에서 내부 결함(개재물, 기공 등)이
  검출되어 부적합 판정된 것. EX_A_MAST_GD_CAU_NM 컬럼에 'UST불량'으로 기록됨.
- 표면흠: 압연 과정에서 제품 표면에 생긴 스크래치, 덴트 등의 외관 결함.
- 치수불량: 두께, 폭, 길이가 주문 규격 허용 공차를 벗어난 결함.
- 발생공장: 품질 결함이 물리적으로 검출된 공장/공정 (QLY_INC_HPN_FAC_TP_NM).
- 책임공장: 결함 발생 원인에 대한 책임이 판정된 공장/공정 (QLY_INC_RESP_FAC_TP_NM).
- 품종그룹: 제품 분류 체계의 그룹 단위 (ITEM_TYPE_GROUP_NAME). 후판, 선재 등.
- 규격약호: 제품의 공식 규격을 식별하는 축약 코드 (SPECIFICATION_CD_N).
- 클레임: 고객사가 품질 문제로 제기한 보상 요구. 보상금액은 RMA_QTY.`

// DialectRules are the SQL generation rules. The float-promotion rule is
// correctness-critical: integer division silently truncates every rate to 0.
const DialectRules = `SQL 생성 규칙:
- SQLite 문법을 사용한다.
- 날짜 비교와 그룹핑은 'YYYYMMDD' 문자열 기준으로 한다.
  연도: SUBSTR(DAY_CD, 1, 4), 연월: SUBSTR(DAY_CD, 1, 6). 날짜 타입 함수 금지.
- 비율/나눗셈은 반드시 실수 나눗셈으로 계산한다. 한쪽 피연산자를 실수로
  승격할 것 (예: SUM(QLY_INC_HPW) * 100.0 / SUM(TR_F_PRODQUANTITY)).
  정수 나눗셈은 비율을 0으로 절삭하므로 금지.
- 위 3개 테이블과 명시된 컬럼만 참조한다.
- 적절한 GROUP BY, ORDER BY를 사용하고 최근 데이터를 우선한다.`

// DisambiguationPolicy states when a clarifying question is warranted.
// Confirmation fires only when the criterion the user actually named maps to
// two or more concrete schema fields; a rich schema alone is not ambiguity.
const DisambiguationPolicy = `반문(확인 질문) 정책:
- 사용자가 지정한 그룹핑/필터 기준이 서로 다른 2개 이상의 구체적인 컬럼에
  대응되어 선택에 따라 쿼리 의미가 달라질 때만 반문한다.
  예: '공장별' → 발생공장(QLY_INC_HPN_FAC_TP_NM) vs 책임공장(QLY_INC_RESP_FAC_TP_NM)
  예: '제품별' → 품종그룹(ITEM_TYPE_GROUP_NAME) vs 규격약호(SPECIFICATION_CD_N)
- 사용자가 단일하고 명확한 기준을 지정했다면 (예: 연도별 비교) 다른 차원이
  스키마에 존재하더라도 반문하지 않는다.
- 반문할 때는 (a) 언급된 지표/항목의 정확한 정의, (b) 각 후보 컬럼의 이름과
  정의, (c) 두 후보가 충돌하는 이유를 명시해야 한다.`

// DomainKnowledge is the full bundle injected verbatim into classification,
// disambiguation, SQL synthesis, and visualization prompts.
const DomainKnowledge = `[도메인 지식 ` + Version + `]

` + MetricFormulas + `

` + SchemaDoc + `

` + DefectGlossary + `

` + DialectRules + `

` + DisambiguationPolicy
